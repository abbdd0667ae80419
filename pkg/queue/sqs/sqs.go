package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/resilience"
)

const (
	attrReceiveCount = "ApproximateReceiveCount"
	attrSentAt       = "SentTimestamp"

	// FailureReasonAttribute carries the error on dead-lettered messages.
	FailureReasonAttribute = "FailureReason"
	// SourceMessageAttribute carries the original message id on dead-lettered messages.
	SourceMessageAttribute = "SourceMessageId"
)

// API is the subset of *sqs.Client used by the pipeline.
type API interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Queue reads OCR completion notifications and acknowledges them.
type Queue struct {
	api      API
	queueURL string
	dlqURL   string
	exec     *resilience.Executor
	logger   logger.Logger
}

func New(awsCfg aws.Config, queueURL, dlqURL string, exec *resilience.Executor, log logger.Logger) *Queue {
	return NewWithAPI(sqs.NewFromConfig(awsCfg), queueURL, dlqURL, exec, log)
}

func NewWithAPI(api API, queueURL, dlqURL string, exec *resilience.Executor, log logger.Logger) *Queue {
	return &Queue{api: api, queueURL: queueURL, dlqURL: dlqURL, exec: exec, logger: log}
}

// ReceiveOptions bound one long-poll.
type ReceiveOptions struct {
	MaxMessages       int32
	WaitTimeSeconds   int32
	VisibilityTimeout time.Duration
}

// Receive long-polls the source queue. Bodies are returned unparsed.
func (q *Queue) Receive(ctx context.Context, opts ReceiveOptions) ([]models.CompletionMessage, error) {
	if q.queueURL == "" {
		return nil, models.WrapError(models.ErrConfiguration, "sqs receive", errors.New("queue url is empty"))
	}
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: opts.MaxMessages,
		WaitTimeSeconds:     opts.WaitTimeSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
			types.MessageSystemAttributeNameSentTimestamp,
		},
	}
	if opts.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(opts.VisibilityTimeout / time.Second)
	}

	var out *sqs.ReceiveMessageOutput
	err := q.exec.Do(ctx, "sqs.ReceiveMessage", func(ctx context.Context) error {
		var err error
		out, err = q.api.ReceiveMessage(ctx, input)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	msgs := make([]models.CompletionMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, models.CompletionMessage{
			MessageID:     aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
			ReceiveCount:  parseReceiveCount(m.Attributes[attrReceiveCount]),
			SentAt:        parseEpochMillis(m.Attributes[attrSentAt]),
			QueueURL:      q.queueURL,
		})
	}
	return msgs, nil
}

// Ack deletes msg using its own receipt handle.
func (q *Queue) Ack(ctx context.Context, msg models.CompletionMessage) error {
	queueURL := msg.QueueURL
	if queueURL == "" {
		queueURL = q.queueURL
	}
	if msg.ReceiptHandle == "" {
		return fmt.Errorf("message %s has no receipt handle", msg.MessageID)
	}

	err := q.exec.Do(ctx, "sqs.DeleteMessage", func(ctx context.Context) error {
		_, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(queueURL),
			ReceiptHandle: aws.String(msg.ReceiptHandle),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", msg.MessageID, err)
	}
	return nil
}

// HasDeadLetter reports whether a dead-letter queue is configured.
func (q *Queue) HasDeadLetter() bool {
	return q.dlqURL != ""
}

// DeadLetter copies msg to the dead-letter queue with reason, then deletes it
// from the source queue.
func (q *Queue) DeadLetter(ctx context.Context, msg models.CompletionMessage, reason string) error {
	if !q.HasDeadLetter() {
		return models.WrapError(models.ErrConfiguration, "sqs dead letter", errors.New("dead-letter queue url is empty"))
	}

	err := q.exec.Do(ctx, "sqs.SendMessage", func(ctx context.Context) error {
		_, err := q.api.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(q.dlqURL),
			MessageBody: aws.String(msg.Body),
			MessageAttributes: map[string]types.MessageAttributeValue{
				FailureReasonAttribute: {
					DataType:    aws.String("String"),
					StringValue: aws.String(truncate(reason, 1024)),
				},
				SourceMessageAttribute: {
					DataType:    aws.String("String"),
					StringValue: aws.String(msg.MessageID),
				},
			},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", msg.MessageID, err)
	}

	q.logger.Warn("Message dead-lettered",
		logger.MessageID(msg.MessageID),
		logger.Int("receiveCount", msg.ReceiveCount),
		logger.String("reason", reason),
	)
	return q.Ack(ctx, msg)
}

// MessageFromEvent converts a record delivered by a Lambda event source mapping.
func MessageFromEvent(rec events.SQSMessage) models.CompletionMessage {
	msg := models.CompletionMessage{
		MessageID:     rec.MessageId,
		ReceiptHandle: rec.ReceiptHandle,
		Body:          rec.Body,
		ReceiveCount:  parseReceiveCount(rec.Attributes[attrReceiveCount]),
		SentAt:        parseEpochMillis(rec.Attributes[attrSentAt]),
	}
	if url, err := QueueURLFromARN(rec.EventSourceARN); err == nil {
		msg.QueueURL = url
	}
	return msg
}

// QueueURLFromARN maps arn:aws:sqs:{region}:{account}:{name} to the queue URL.
func QueueURLFromARN(arn string) (string, error) {
	parts := strings.Split(arn, ":")
	if len(parts) != 6 || parts[0] != "arn" || parts[2] != "sqs" || parts[3] == "" || parts[4] == "" || parts[5] == "" {
		return "", fmt.Errorf("invalid sqs arn: %q", arn)
	}
	host := "sqs." + parts[3] + ".amazonaws.com"
	switch parts[1] {
	case "aws-cn":
		host += ".cn"
	}
	return fmt.Sprintf("https://%s/%s/%s", host, parts[4], parts[5]), nil
}

func parseReceiveCount(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func parseEpochMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

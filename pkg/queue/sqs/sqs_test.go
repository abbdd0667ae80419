package sqs

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
)

type fakeAPI struct {
	messages []types.Message
	deleted  []*sqs.DeleteMessageInput
	sent     []*sqs.SendMessageInput
}

func (f *fakeAPI) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, in)
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("dlq-1")}, nil
}

const queueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/textract-complete"

func TestReceive(t *testing.T) {
	api := &fakeAPI{messages: []types.Message{{
		MessageId:     aws.String("m-1"),
		ReceiptHandle: aws.String("rh-1"),
		Body:          aws.String(`{"JobId":"job-1","DocumentName":"a.pdf"}`),
		Attributes: map[string]string{
			"ApproximateReceiveCount": "3",
			"SentTimestamp":           "1704067200000",
		},
	}}}
	q := NewWithAPI(api, queueURL, "", nil, logger.NewTestLogger())

	msgs, err := q.Receive(context.Background(), ReceiveOptions{MaxMessages: 10, WaitTimeSeconds: 20})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-1", msgs[0].MessageID)
	assert.Equal(t, "rh-1", msgs[0].ReceiptHandle)
	assert.Equal(t, 3, msgs[0].ReceiveCount)
	assert.Equal(t, int64(1704067200), msgs[0].SentAt.Unix())
	assert.Equal(t, queueURL, msgs[0].QueueURL)
}

func TestAckUsesMessageHandle(t *testing.T) {
	api := &fakeAPI{}
	q := NewWithAPI(api, queueURL, "", nil, logger.NewTestLogger())

	other := "https://sqs.us-east-1.amazonaws.com/123456789012/other"
	require.NoError(t, q.Ack(context.Background(), models.CompletionMessage{MessageID: "m-2", ReceiptHandle: "rh-2", QueueURL: other}))
	require.Len(t, api.deleted, 1)
	assert.Equal(t, "rh-2", aws.ToString(api.deleted[0].ReceiptHandle))
	assert.Equal(t, other, aws.ToString(api.deleted[0].QueueUrl))

	assert.Error(t, q.Ack(context.Background(), models.CompletionMessage{MessageID: "m-3"}))
}

func TestDeadLetter(t *testing.T) {
	api := &fakeAPI{}
	q := NewWithAPI(api, queueURL, queueURL+"-dlq", nil, logger.NewTestLogger())

	msg := models.CompletionMessage{MessageID: "m-4", ReceiptHandle: "rh-4", Body: "garbage"}
	require.NoError(t, q.DeadLetter(context.Background(), msg, "malformed message"))

	require.Len(t, api.sent, 1)
	assert.Equal(t, queueURL+"-dlq", aws.ToString(api.sent[0].QueueUrl))
	assert.Equal(t, "garbage", aws.ToString(api.sent[0].MessageBody))
	assert.Equal(t, "malformed message", aws.ToString(api.sent[0].MessageAttributes[FailureReasonAttribute].StringValue))
	require.Len(t, api.deleted, 1)
	assert.Equal(t, "rh-4", aws.ToString(api.deleted[0].ReceiptHandle))

	noDLQ := NewWithAPI(&fakeAPI{}, queueURL, "", nil, logger.NewTestLogger())
	assert.False(t, noDLQ.HasDeadLetter())
	err := noDLQ.DeadLetter(context.Background(), msg, "x")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestQueueURLFromARN(t *testing.T) {
	url, err := QueueURLFromARN("arn:aws:sqs:us-east-1:123456789012:textract-complete")
	require.NoError(t, err)
	assert.Equal(t, queueURL, url)

	_, err = QueueURLFromARN("arn:aws:sns:us-east-1:123456789012:topic")
	assert.Error(t, err)
}

func TestMessageFromEvent(t *testing.T) {
	msg := MessageFromEvent(events.SQSMessage{
		MessageId:      "m-5",
		ReceiptHandle:  "rh-5",
		Body:           "{}",
		EventSourceARN: "arn:aws:sqs:us-east-1:123456789012:textract-complete",
		Attributes:     map[string]string{"ApproximateReceiveCount": "2"},
	})
	assert.Equal(t, 2, msg.ReceiveCount)
	assert.Equal(t, queueURL, msg.QueueURL)
	assert.Equal(t, "rh-5", msg.ReceiptHandle)
}

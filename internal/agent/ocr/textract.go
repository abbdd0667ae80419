package ocr

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/google/uuid"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/logger"
	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/resilience"
)

// maxResultsPerPage is the largest page GetDocumentTextDetection returns.
const maxResultsPerPage = 1000

// requestNamespace seeds deterministic ClientRequestTokens.
var requestNamespace = uuid.MustParse("5b0e5a43-4f8e-4d52-9c3a-6c1f1a0f7e21")

var jobTagDisallowed = regexp.MustCompile(`[^a-zA-Z0-9_.\-:]`)

// API is the subset of *textract.Client used by the pipeline.
type API interface {
	StartDocumentTextDetection(ctx context.Context, in *textract.StartDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error)
	GetDocumentTextDetection(ctx context.Context, in *textract.GetDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error)
}

// TextractClient starts asynchronous text detection jobs and reads their results.
type TextractClient struct {
	api    API
	exec   *resilience.Executor
	logger logger.Logger
}

func NewTextractClient(awsCfg aws.Config, exec *resilience.Executor, log logger.Logger) *TextractClient {
	return NewWithAPI(textract.NewFromConfig(awsCfg), exec, log)
}

func NewWithAPI(api API, exec *resilience.Executor, log logger.Logger) *TextractClient {
	return &TextractClient{api: api, exec: exec, logger: log}
}

// StartTextDetection starts a job for ref and registers ch as its completion
// channel. When revision is set (the object's ETag) the request token is
// derived from it, so a replayed upload event returns the existing job.
func (c *TextractClient) StartTextDetection(ctx context.Context, ref models.DocumentRef, ch models.NotificationChannel, revision string) (string, error) {
	input := &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(ref.Bucket),
				Name:   aws.String(ref.Key),
			},
		},
		NotificationChannel: &types.NotificationChannel{
			SNSTopicArn: aws.String(ch.TopicARN),
			RoleArn:     aws.String(ch.RoleARN),
		},
		JobTag: aws.String(JobTag(ref.Key)),
	}
	if revision != "" {
		input.ClientRequestToken = aws.String(RequestToken(ref, revision))
	}

	var jobID string
	err := c.exec.Do(ctx, "textract.StartDocumentTextDetection", func(ctx context.Context) error {
		out, err := c.api.StartDocumentTextDetection(ctx, input)
		if err != nil {
			return err
		}
		jobID = aws.ToString(out.JobId)
		return nil
	})
	if err != nil {
		return "", models.WrapError(models.ErrSubmission, "start document text detection", err)
	}
	if jobID == "" {
		return "", models.WrapError(models.ErrSubmission, "start document text detection", errors.New("empty job id in response"))
	}
	return jobID, nil
}

// GetResult pages through the job output and keeps only LINE blocks, in the
// order Textract returned them.
func (c *TextractClient) GetResult(ctx context.Context, jobID string) (*models.OCRTextResult, error) {
	result := &models.OCRTextResult{JobID: jobID}
	var nextToken *string

	for page := 1; ; page++ {
		var out *textract.GetDocumentTextDetectionOutput
		err := c.exec.Do(ctx, "textract.GetDocumentTextDetection", func(ctx context.Context) error {
			var err error
			out, err = c.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
				JobId:      aws.String(jobID),
				MaxResults: aws.Int32(maxResultsPerPage),
				NextToken:  nextToken,
			})
			return err
		})
		if err != nil {
			var invalid *types.InvalidJobIdException
			if errors.As(err, &invalid) {
				return nil, models.WrapError(models.ErrResultNotFound, "get document text detection", err)
			}
			return nil, fmt.Errorf("failed to get document text detection for job %s: %w", jobID, err)
		}

		switch out.JobStatus {
		case types.JobStatusInProgress:
			return nil, models.WrapError(models.ErrResultNotFound, "get document text detection",
				fmt.Errorf("job %s is %s", jobID, out.JobStatus))
		case types.JobStatusFailed:
			return nil, models.WrapError(models.ErrJobFailed, "get document text detection",
				fmt.Errorf("job %s failed: %s", jobID, aws.ToString(out.StatusMessage)))
		case types.JobStatusPartialSuccess:
			c.logger.Warn("Textract job partially succeeded",
				logger.JobID(jobID),
				logger.Int("warnings", len(out.Warnings)),
			)
		}

		result.Lines = append(result.Lines, ExtractLines(out.Blocks)...)

		if out.NextToken == nil || *out.NextToken == "" {
			c.logger.Debug("Fetched OCR result",
				logger.JobID(jobID),
				logger.Int("pages", page),
				logger.Int("lines", len(result.Lines)),
			)
			return result, nil
		}
		nextToken = out.NextToken
	}
}

// ExtractLines returns the text of LINE blocks; word, table and key-value blocks are dropped.
func ExtractLines(blocks []types.Block) []string {
	var lines []string
	for _, block := range blocks {
		if block.BlockType == types.BlockTypeLine && block.Text != nil {
			lines = append(lines, *block.Text)
		}
	}
	return lines
}

// RequestToken is a stable idempotency token for one revision of a document.
func RequestToken(ref models.DocumentRef, revision string) string {
	return uuid.NewSHA1(requestNamespace, []byte(ref.Bucket+"/"+ref.Key+"#"+revision)).String()
}

// JobTag maps a key onto Textract's JobTag alphabet and 64-character limit.
func JobTag(key string) string {
	tag := jobTagDisallowed.ReplaceAllString(key, "_")
	if len(tag) > 64 {
		tag = tag[len(tag)-64:]
	}
	if tag == "" {
		tag = "document"
	}
	return tag
}

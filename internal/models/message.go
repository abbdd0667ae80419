package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Textract job states reported in completion notifications and GetDocumentTextDetection.
const (
	JobStatusSucceeded      = "SUCCEEDED"
	JobStatusFailed         = "FAILED"
	JobStatusPartialSuccess = "PARTIAL_SUCCESS"
	JobStatusInProgress     = "IN_PROGRESS"
)

// CompletionMessage 队列中的 OCR 完成通知
type CompletionMessage struct {
	MessageID     string      `json:"messageId"`
	JobID         string      `json:"jobId"`
	Document      DocumentRef `json:"document"`
	JobStatus     string      `json:"jobStatus,omitempty"`
	ReceiptHandle string      `json:"-"`
	ReceiveCount  int         `json:"receiveCount"`
	SentAt        time.Time   `json:"sentAt"`
	// QueueURL overrides the acknowledger's default queue, e.g. when the
	// message arrived through a Lambda event source mapping.
	QueueURL string `json:"queueUrl,omitempty"`
	Body     string `json:"-"`
}

// CompletionBody is the parsed content of a queue message body.
type CompletionBody struct {
	JobID     string
	Document  DocumentRef
	JobStatus string
}

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

type completionPayload struct {
	JobID        string `json:"JobId"`
	DocumentName string `json:"DocumentName"`
	Bucket       string `json:"Bucket"`
	Status       string `json:"Status"`
	API          string `json:"API"`
	Location     *struct {
		S3ObjectName string `json:"S3ObjectName"`
		S3Bucket     string `json:"S3Bucket"`
	} `json:"DocumentLocation"`
}

// ParseCompletionBody accepts the plain {"JobId","DocumentName"} body, the
// Textract completion notification, or either wrapped in an SNS envelope.
func ParseCompletionBody(body string) (CompletionBody, error) {
	raw := []byte(strings.TrimSpace(body))
	if len(raw) == 0 {
		return CompletionBody{}, WrapError(ErrMalformedMessage, "parse completion body", errors.New("empty body"))
	}

	var env snsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return CompletionBody{}, WrapError(ErrMalformedMessage, "parse completion body", err)
	}
	if env.Type == "Notification" && env.Message != "" {
		raw = []byte(env.Message)
	}

	var p completionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return CompletionBody{}, WrapError(ErrMalformedMessage, "parse completion payload", err)
	}

	out := CompletionBody{
		JobID:     p.JobID,
		JobStatus: p.Status,
		Document:  DocumentRef{Bucket: p.Bucket, Key: p.DocumentName},
	}
	if out.Document.Key == "" && p.Location != nil {
		out.Document = DocumentRef{Bucket: p.Location.S3Bucket, Key: p.Location.S3ObjectName}
	}

	switch {
	case out.JobID == "":
		return CompletionBody{}, WrapError(ErrMalformedMessage, "parse completion payload", errors.New("missing JobId"))
	case out.Document.Key == "":
		return CompletionBody{}, WrapError(ErrMalformedMessage, "parse completion payload",
			fmt.Errorf("missing document name for job %s", out.JobID))
	}
	return out, nil
}

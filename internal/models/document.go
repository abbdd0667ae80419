package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultSeparator joins OCR lines into plain text.
const DefaultSeparator = "\n"

// DocumentRef 文档在对象存储中的位置
type DocumentRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (r DocumentRef) String() string {
	return fmt.Sprintf("s3://%s/%s", r.Bucket, r.Key)
}

// IsZero reports whether the reference names no object.
func (r DocumentRef) IsZero() bool {
	return r.Key == ""
}

// NotificationChannel is the SNS topic Textract publishes job completion to,
// together with the role Textract assumes to publish.
type NotificationChannel struct {
	TopicARN string `json:"topicArn"`
	RoleARN  string `json:"roleArn"`
}

// OCRJob 异步文本检测任务
type OCRJob struct {
	JobID       string              `json:"jobId"`
	Document    DocumentRef         `json:"document"`
	Channel     NotificationChannel `json:"channel"`
	SubmittedAt time.Time           `json:"submittedAt"`
}

// OCRTextResult holds the LINE blocks of a finished job in the order Textract returned them.
type OCRTextResult struct {
	JobID string   `json:"jobId"`
	Lines []string `json:"lines"`
}

// Text joins the detected lines with sep.
func (r *OCRTextResult) Text(sep string) string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Lines, sep)
}

// Unclassified replaces labels the model returned outside the allowed set.
const Unclassified = "UNCLASSIFIED"

// ClassificationResult 文档分类结果
type ClassificationResult struct {
	Document  DocumentRef `json:"document"`
	JobID     string      `json:"jobId"`
	Label     string      `json:"label"`
	Raw       string      `json:"raw"`
	Timestamp time.Time   `json:"timestamp"`
	TextKey   string      `json:"textKey"`
	ResultKey string      `json:"resultKey"`
}

// EnrichedArtifact is the persisted output of the enrichment stage.
type EnrichedArtifact struct {
	Document       DocumentRef `json:"document"`
	Key            string      `json:"key"`
	Classification string      `json:"classification"`
	Content        string      `json:"content"`
}

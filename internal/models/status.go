package models

import (
	"encoding/json"
	"net/http"
	"time"
)

// MessageState 消息处理状态
type MessageState string

const (
	StateSubmitted    MessageState = "SUBMITTED"
	StateReceived     MessageState = "RECEIVED"
	StateFetchingOCR  MessageState = "FETCHING_OCR"
	StateClassifying  MessageState = "CLASSIFYING"
	StatePersisting   MessageState = "PERSISTING"
	StateAcknowledged MessageState = "ACKNOWLEDGED"
	StateFailed       MessageState = "FAILED"
	StatePoisoned     MessageState = "POISONED"
	StateEnriched     MessageState = "ENRICHED"
)

// JobStatus is the tracked lifecycle of one OCR job through the pipeline.
type JobStatus struct {
	JobID     string       `json:"jobId"`
	Document  DocumentRef  `json:"document"`
	State     MessageState `json:"state"`
	Error     string       `json:"error,omitempty"`
	Attempts  int          `json:"attempts,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// InvocationResult is what every serverless entry point returns.
type InvocationResult struct {
	StatusCode int      `json:"statusCode"`
	Body       string   `json:"body,omitempty"`
	JobID      string   `json:"JobId,omitempty"`
	JobIDs     []string `json:"JobIds,omitempty"`
	Error      string   `json:"Error,omitempty"`
}

// Succeeded builds a 200 result whose body is the JSON encoding of msg.
func Succeeded(msg string) InvocationResult {
	body, _ := json.Marshal(msg)
	return InvocationResult{StatusCode: http.StatusOK, Body: string(body)}
}

// Failed builds a 500 result carrying err's message in both body and Error.
func Failed(err error) InvocationResult {
	body, _ := json.Marshal(err.Error())
	return InvocationResult{StatusCode: http.StatusInternalServerError, Body: string(body), Error: err.Error()}
}

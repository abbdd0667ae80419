package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration a required option is missing or invalid; fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrSubmission the OCR job could not be started.
	ErrSubmission = errors.New("submission error")
	// ErrResultNotFound the OCR result is not available yet or the job id is unknown.
	ErrResultNotFound = errors.New("result not found")
	// ErrInference the generative call failed or returned unusable output.
	ErrInference = errors.New("inference error")
	// ErrPersistence an object-store write failed.
	ErrPersistence = errors.New("persistence error")
	// ErrMalformedMessage the queue body could not be parsed. Never retryable.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrJobFailed Textract reported the job as FAILED. Never retryable.
	ErrJobFailed = errors.New("ocr job failed")
)

// WrapError keeps the error kind matchable with errors.Is and adds operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsPermanent reports errors that redelivery cannot fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedMessage) || errors.Is(err, ErrJobFailed)
}

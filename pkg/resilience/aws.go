package resilience

import (
	"context"
	"errors"
	"net"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

// Throttling and transient service error codes shared by Textract, S3, SQS and Bedrock.
var transientCodes = map[string]bool{
	"ThrottlingException":                    true,
	"Throttling":                             true,
	"ThrottledException":                     true,
	"TooManyRequestsException":               true,
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"LimitExceededException":                 true,
	"SlowDown":                               true,
	"ServiceUnavailable":                     true,
	"ServiceUnavailableException":            true,
	"InternalServerError":                    true,
	"InternalServerException":                true,
	"InternalError":                          true,
	"RequestTimeout":                         true,
	"RequestTimeoutException":                true,
	"ModelNotReadyException":                 true,
}

var transient = Outcome{Retry: true, Trip: true}

// ClassifyAWSError is the Executor default. It retries throttling, 5xx and network errors. Client errors
// (bad bucket, invalid job id, validation) are returned immediately and do not
// count against the breaker.
func ClassifyAWSError(err error) Outcome {
	if err == nil {
		return Outcome{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Outcome{}
	}
	if IsCircuitOpen(err) {
		return transient
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && transientCodes[apiErr.ErrorCode()] {
		return transient
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		if status == 429 || status >= 500 {
			return transient
		}
		return Outcome{}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return transient
	}
	return Outcome{}
}

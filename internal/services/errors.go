package services

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinel error kinds for the pipeline. Callers classify with errors.Is;
// the concrete cause is attached by wrapping with %w.
var (
	ErrMalformedTrigger    = errors.New("malformed trigger event")
	ErrUnsupportedFormat   = errors.New("unsupported document format")
	ErrExtractionJobFailed = errors.New("extraction job failed")
	ErrExtractionTimeout   = errors.New("extraction job timed out")
	ErrExtractionFailed    = errors.New("extraction failed")
	ErrSummarizationFailed = errors.New("summarization failed")
	ErrRateLimitExceeded   = errors.New("rate limit retries exhausted")
)

// HTTPStatus maps a pipeline error to the status code reported in the
// Outcome. Malformed and unsupported inputs are the caller's fault and
// must never be retried by the platform.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMalformedTrigger), errors.Is(err, ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsThrottle reports whether err is a rate-limit rejection from the model
// service. It is the only error class with built-in retry.
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "429") || strings.Contains(e, "rate limit") || strings.Contains(e, "resource exhausted")
}

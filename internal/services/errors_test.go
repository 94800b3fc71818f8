package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		nil:                    http.StatusOK,
		ErrMalformedTrigger:    http.StatusBadRequest,
		ErrUnsupportedFormat:   http.StatusBadRequest,
		ErrExtractionJobFailed: http.StatusInternalServerError,
		ErrExtractionTimeout:   http.StatusInternalServerError,
		ErrExtractionFailed:    http.StatusInternalServerError,
		ErrSummarizationFailed: http.StatusInternalServerError,
		ErrRateLimitExceeded:   http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := HTTPStatus(err); got != want {
			t.Fatalf("HTTPStatus(%v): got %d want %d", err, got, want)
		}
	}
}

func TestHTTPStatusWrapped(t *testing.T) {
	err := fmt.Errorf("%w: doc.gif", ErrUnsupportedFormat)
	if got := HTTPStatus(err); got != http.StatusBadRequest {
		t.Fatalf("wrapped error: got %d want 400", got)
	}
}

func TestIsThrottle(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{status.Error(codes.ResourceExhausted, "quota"), true},
		{errors.New("googleapi: Error 429: Too Many Requests"), true},
		{errors.New("rate limit exceeded for model"), true},
		{status.Error(codes.InvalidArgument, "bad prompt"), false},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsThrottle(tc.err); got != tc.want {
			t.Fatalf("IsThrottle(%v): got %v want %v", tc.err, got, tc.want)
		}
	}
}

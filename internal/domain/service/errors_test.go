package service

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"configuration", &ConfigurationError{Provider: "openai", Reason: "missing api key"}, CodeConfiguration},
		{"rate limit", &RateLimitExceededError{Reason: "requests", WaitHint: time.Second}, CodeRateLimitExceeded},
		{"transient", &ProviderTransientError{Provider: "openai", StatusCode: 503, Err: errors.New("boom")}, CodeProviderUnavailable},
		{"permanent", &ProviderPermanentError{Provider: "openai", StatusCode: 400, Err: errors.New("bad")}, CodeProviderRejected},
		{"invalid", &InvalidRequestError{Field: "type", Reason: "is required"}, CodeInvalidRequest},
		{"wrapped transient", fmt.Errorf("call: %w", &ProviderTransientError{Err: errors.New("x")}), CodeProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorCode(tc.err); got != tc.want {
				t.Errorf("ErrorCode = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&ProviderTransientError{Err: errors.New("x")}) {
		t.Error("transient error should be retryable")
	}
	if IsRetryable(&ProviderPermanentError{Err: errors.New("x")}) {
		t.Error("permanent error should not be retryable")
	}
	if IsRetryable(&ConfigurationError{Reason: "x"}) {
		t.Error("configuration error should not be retryable")
	}
}

func TestWaitHint(t *testing.T) {
	if got := WaitHint(&RateLimitExceededError{WaitHint: 12 * time.Second}); got != 12*time.Second {
		t.Errorf("rate limit hint = %s", got)
	}
	if got := WaitHint(&ProviderTransientError{StatusCode: 429, RetryAfter: 3 * time.Second}); got != 3*time.Second {
		t.Errorf("transient hint = %s", got)
	}
	if got := WaitHint(errors.New("plain")); got != 0 {
		t.Errorf("plain hint = %s", got)
	}
}

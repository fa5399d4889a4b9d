package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      FailureCode
		retryable bool
	}{
		{"deadline exceeded", context.DeadlineExceeded, FailureTimeout, true},
		{"wrapped deadline", fmt.Errorf("generate: %w", context.DeadlineExceeded), FailureTimeout, true},
		{"canceled", context.Canceled, FailureTimeout, false},
		{"http 429", errors.New("API returned unexpected status code: 429"), FailureRateLimited, true},
		{"quota exhausted", errors.New("Quota exceeded for quota metric"), FailureRateLimited, true},
		{"rate limit text", errors.New("rate limit reached for requests"), FailureRateLimited, true},
		{"request timed out", errors.New("net/http: request timed out"), FailureTimeout, true},
		{"bad gateway", errors.New("API returned unexpected status code: 502"), FailureBackendError, true},
		{"overloaded", errors.New("anthropic API error: Overloaded"), FailureBackendError, true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), FailureBackendError, true},
		{"unauthorized", errors.New("API returned unexpected status code: 401"), FailureBackendError, false},
		{"bad request", errors.New("API returned unexpected status code: 400"), FailureBackendError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failure := Classify("openai", tt.err)
			require.NotNil(t, failure)
			assert.Equal(t, tt.code, failure.Code)
			assert.Equal(t, tt.retryable, failure.Retryable)
			assert.Equal(t, "openai", failure.Backend)
			assert.ErrorIs(t, failure, tt.err)
		})
	}
}

func TestClassify_RetryAfterHint(t *testing.T) {
	failure := Classify("openai", errors.New("Rate limit reached for gpt-4o-mini. Please try again in 20s."))
	assert.Equal(t, FailureRateLimited, failure.Code)
	assert.Equal(t, 20*time.Second, failure.RetryAfter)

	failure = Classify("anthropic", errors.New("429 too many requests"))
	assert.Equal(t, FailureRateLimited, failure.Code)
	assert.Zero(t, failure.RetryAfter)
}

func TestFailure_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	failure := &Failure{Backend: "openai", Code: FailureBackendError, Err: cause}

	assert.Equal(t, "openai backend_error: boom", failure.Error())
	assert.ErrorIs(t, failure, cause)

	bare := &Failure{Backend: "google", Code: FailureTimeout}
	assert.Equal(t, "google timeout", bare.Error())
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FailureCode identifies one class of model invocation failure.
type FailureCode string

const (
	FailureTimeout           FailureCode = "timeout"
	FailureRateLimited       FailureCode = "rate_limited"
	FailureMalformedResponse FailureCode = "malformed_response"
	FailureBackendError      FailureCode = "backend_error"
	FailureUnsupportedModel  FailureCode = "unsupported_model"
)

// Failure is the normalized error the gateway returns for every invocation
// problem. Callers decide retry policy from Retryable; the gateway itself
// never retries.
type Failure struct {
	Backend    string
	Code       FailureCode
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s %s: %v", f.Backend, f.Code, f.Err)
	}
	return fmt.Sprintf("%s %s", f.Backend, f.Code)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// retryAfterPattern catches the wait hints some backends embed in 429 bodies,
// e.g. "Please try again in 20s" or "retry after 30 seconds".
var retryAfterPattern = regexp.MustCompile(`(?i)(?:retry|try)[ -]?(?:again)?[ ]?(?:in|after)[:\s]+(\d+)`)

// Classify maps a raw backend error onto the failure taxonomy. Context errors
// are checked structurally; everything else falls back to substring matching
// because the SDKs flatten HTTP status codes into error strings.
func Classify(backend string, err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Backend: backend, Code: FailureTimeout, Retryable: true, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Failure{Backend: backend, Code: FailureTimeout, Retryable: false, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "quota", "too many requests"):
		return &Failure{
			Backend:    backend,
			Code:       FailureRateLimited,
			Retryable:  true,
			RetryAfter: retryAfterHint(msg),
			Err:        err,
		}
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return &Failure{Backend: backend, Code: FailureTimeout, Retryable: true, Err: err}
	case containsAny(msg, "500", "502", "503", "504", "overloaded", "connection refused", "connection reset", "temporarily unavailable"):
		return &Failure{Backend: backend, Code: FailureBackendError, Retryable: true, Err: err}
	}

	return &Failure{Backend: backend, Code: FailureBackendError, Retryable: false, Err: err}
}

func retryAfterHint(msg string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

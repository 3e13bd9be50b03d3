package provider

import (
	"errors"
	"fmt"
)

// Common errors returned by the provider.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrQuotaExceeded is returned when the local quota tracker blocks a call
	// before it reaches the upstream provider.
	ErrQuotaExceeded = errors.New("upstream quota exceeded")
)

// ErrorKind classifies an upstream search failure.
type ErrorKind string

const (
	// KindTransport represents network or timeout failures. Recoverable:
	// the failing batch is retried on the next pagination call.
	KindTransport ErrorKind = "transport"

	// KindRateLimited represents HTTP 429 from the provider.
	KindRateLimited ErrorKind = "rate_limited"

	// KindAuthOrQuota represents HTTP 401/403 (invalid key or quota exceeded).
	KindAuthOrQuota ErrorKind = "auth_or_quota"

	// KindMalformedResponse represents an unparseable upstream payload.
	KindMalformedResponse ErrorKind = "malformed_response"

	// KindUpstream represents any other non-200 upstream response.
	KindUpstream ErrorKind = "upstream"
)

// SearchError represents an upstream search failure with classification.
type SearchError struct {
	Query      string
	StatusCode int
	Kind       ErrorKind
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search %s error (status %d): %s: %v",
			e.Kind, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("search %s error (status %d): %s",
		e.Kind, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SearchError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an upstream HTTP status to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 401 || status == 403:
		return KindAuthOrQuota
	default:
		return KindUpstream
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(err *SearchError) bool {
	switch err.Kind {
	case KindTransport:
		// Network errors and timeouts should be retried
		return true
	case KindRateLimited:
		// 429 should be retried after backoff
		return true
	case KindAuthOrQuota:
		// Bad key or exhausted quota never recovers within a call
		return false
	case KindMalformedResponse:
		// Retrying won't fix a broken payload
		return false
	case KindUpstream:
		// Only server-side failures are worth retrying
		return err.StatusCode >= 500
	default:
		return false
	}
}

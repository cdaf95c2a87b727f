package domain

import (
	"context"
	"errors"
)

// Error taxonomy for remote calls. Transport-specific errors wrap one of
// these so callers can branch with errors.Is.
var (
	// ErrRateLimited is returned when a remote quota is exhausted.
	// Retryable once the reset time has passed.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrServiceUnavailable is returned for transient remote outages.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrGeneric is returned for unclassified remote failures, including
	// malformed responses.
	ErrGeneric = errors.New("request failed")

	// ErrConfiguration is returned when credentials or endpoints are missing.
	// It is never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation is returned when a domain value fails validation.
	ErrValidation = errors.New("validation failed")
)

// IsRetryable reports whether err may succeed on a later attempt.
// Configuration errors and caller cancellation are terminal; every other
// failure is retryable up to the caller's attempt ceiling.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrConfiguration),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// UserMessage returns a plain-language description of err suitable for a
// notification. Raw error text is never exposed.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "Too many requests right now. Please try again in a moment."
	case errors.Is(err, ErrServiceUnavailable):
		return "A shopping service is temporarily unavailable."
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "The request took too long to complete."
	case errors.Is(err, ErrConfiguration):
		return "The service is not configured correctly."
	default:
		return "Something went wrong while processing your request."
	}
}

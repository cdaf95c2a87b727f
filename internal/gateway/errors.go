package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/phrazzld/fesoni/internal/domain"
)

// ErrInvalidResponse is returned when a remote payload cannot be decoded or
// fails validation. It is classified as a generic failure.
var ErrInvalidResponse = fmt.Errorf("%w: invalid response payload", domain.ErrGeneric)

// StatusError reports a non-success HTTP-style status from a remote call.
// Callers outside the HTTP transport (SDK clients) return it so that their
// failures are classified the same way.
type StatusError struct {
	StatusCode int
	RetryAfter string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned status %d", e.StatusCode)
}

// Error is the classified failure of a routed call. errors.Is matches both
// its Kind (one of the domain sentinels) and the underlying cause.
type Error struct {
	Kind       error
	Service    string
	Endpoint   string
	RequestID  string
	StatusCode int
	ResetTime  time.Time
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Service, e.Endpoint, e.Kind)
	if !e.ResetTime.IsZero() {
		msg += fmt.Sprintf(" (resets at %s)", e.ResetTime.Format(time.RFC3339))
	}
	if e.Err != nil && !errors.Is(e.Kind, e.Err) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// classify maps a call failure to the error taxonomy. now is used to derive
// the reset time of rate-limited calls.
func classify(err error, now time.Time) (kind error, status int, reset time.Time) {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		status = statusErr.StatusCode
		switch status {
		case http.StatusTooManyRequests:
			return domain.ErrRateLimited, status, retryAfter(statusErr.RetryAfter, now)
		case http.StatusServiceUnavailable:
			return domain.ErrServiceUnavailable, status, time.Time{}
		case http.StatusGatewayTimeout:
			return domain.ErrTimeout, status, time.Time{}
		default:
			return domain.ErrGeneric, status, time.Time{}
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return domain.ErrTimeout, 0, time.Time{}
	case errors.Is(err, domain.ErrRateLimited):
		return domain.ErrRateLimited, 0, time.Time{}
	case errors.Is(err, domain.ErrServiceUnavailable):
		return domain.ErrServiceUnavailable, 0, time.Time{}
	case errors.Is(err, domain.ErrConfiguration):
		return domain.ErrConfiguration, 0, time.Time{}
	default:
		return domain.ErrGeneric, 0, time.Time{}
	}
}

// retryAfter parses a Retry-After header value (seconds or HTTP date).
// Missing or malformed values default to one minute.
func retryAfter(value string, now time.Time) time.Time {
	if value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
			return now.Add(time.Duration(secs) * time.Second)
		}
		if t, err := http.ParseTime(value); err == nil {
			return t
		}
	}
	return now.Add(time.Minute)
}

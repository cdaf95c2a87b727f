package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/phrazzld/fesoni/internal/api/shared"
	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/phrazzld/fesoni/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, task.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrTaskNotFailed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrServiceUnavailable),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrGeneric):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing description of err.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, task.ErrTaskNotFailed):
		return "Only failed tasks can be resubmitted"
	case errors.Is(err, task.ErrQueueClosed):
		return "The task queue is shutting down"
	case errors.Is(err, domain.ErrValidation):
		return "Invalid request"
	default:
		return domain.UserMessage(err)
	}
}

// HandleAPIError writes the error response for err. A non-empty message
// replaces the default safe message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), message, err)
}

package orchestrator

import (
	"errors"
	"fmt"
)

// ErrNoProducts indicates that a pipeline produced no products to style.
var ErrNoProducts = errors.New("no products found")

// Pipeline operations reported in Error.
const (
	OpShoppingRequest         = "shopping_request"
	OpEnhancedShoppingRequest = "enhanced_shopping_request"
)

// Error wraps a pipeline failure with the operation and step that failed.
// Use errors.Is to match the underlying domain error.
type Error struct {
	// Operation is the pipeline that failed (e.g., "shopping_request")
	Operation string
	// Step names the stage within the pipeline (e.g., "analysis", "search")
	Step string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for Error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s failed at %s: %v", e.Operation, e.Step, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

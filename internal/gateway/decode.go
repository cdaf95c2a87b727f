package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DecodeJSON decodes a response body into v and validates it against its
// struct tags. Malformed or invalid payloads yield ErrInvalidResponse, a
// generic classified failure.
func DecodeJSON(resp *Response, v any) error {
	if resp == nil || len(resp.Body) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidResponse)
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	// Non-struct targets (slices, maps) carry no validation rules
	if err := validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	return nil
}

package api

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/fesoni/internal/api/shared"
	"github.com/phrazzld/fesoni/internal/domain"
)

var pathParamPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// getPathParam extracts and checks a URL path parameter.
//
// Returns:
//   - (value, nil): the parameter when present and well formed
//   - ("", error): a validation error otherwise
func getPathParam(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", domain.ErrValidation, name)
	}
	if !pathParamPattern.MatchString(value) {
		return "", fmt.Errorf("%w: %s has invalid format", domain.ErrValidation, name)
	}
	return value, nil
}

// decodeAndValidate decodes the JSON body into v and validates it. It
// writes a 400 response and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := shared.DecodeJSON(w, r, v); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %v", domain.ErrValidation, err), "Invalid request format")
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %v", domain.ErrValidation, err), "Validation error: "+err.Error())
		return false
	}
	return true
}

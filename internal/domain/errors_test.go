package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", ErrRateLimited, true},
		{"unavailable", fmt.Errorf("search: %w", ErrServiceUnavailable), true},
		{"timeout", ErrTimeout, true},
		{"generic", ErrGeneric, true},
		{"unclassified", errors.New("boom"), true},
		{"configuration", fmt.Errorf("gateway: %w", ErrConfiguration), false},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestUserMessage_NeverLeaksRawError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("dial tcp 10.0.0.1:443 api_key=sk-abcdef123456: %w", ErrServiceUnavailable)
	msg := UserMessage(err)

	assert.NotContains(t, msg, "api_key")
	assert.NotContains(t, msg, "10.0.0.1")
	assert.Equal(t, "A shopping service is temporarily unavailable.", msg)
	assert.Empty(t, UserMessage(nil))
}

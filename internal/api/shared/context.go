// Package shared holds the request context, decoding and response helpers
// used by the HTTP handlers and middleware.
package shared

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is the type of context keys set by this package.
type ContextKey string

// TraceIDKey is the context key for the request's trace ID.
const TraceIDKey ContextKey = "traceID"

// TraceHeader carries the trace ID on requests and responses.
const TraceHeader = "X-Request-ID"

// inboundTraceID limits client-supplied trace IDs to a safe alphabet.
var inboundTraceID = regexp.MustCompile(`^[A-Za-z0-9-]{8,64}$`)

// SetTraceID stores a trace ID in ctx. A well-formed inbound ID is kept so
// that logs can be correlated across hops; otherwise a new one is
// generated.
func SetTraceID(ctx context.Context, inbound string) context.Context {
	traceID := inbound
	if !inboundTraceID.MatchString(traceID) {
		traceID = generateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// generateTraceID returns a 32-character hex ID.
func generateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

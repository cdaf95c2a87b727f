package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/fesoni/internal/api/shared"
	"github.com/phrazzld/fesoni/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace(t *testing.T) {
	t.Parallel()

	log, buf := logger.NewTestLogger(t)

	var seen string
	handler := Trace(log)(AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set(shared.TraceHeader, "client-trace-0001")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "client-trace-0001", seen)
	assert.Equal(t, "client-trace-0001", w.Header().Get(shared.TraceHeader))

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "client-trace-0001", e["trace_id"])
	}
	assert.Equal(t, "request completed", entries[2]["msg"])
	assert.Equal(t, float64(http.StatusTeapot), entries[2]["status"])
}

func TestTrace_GeneratesID(t *testing.T) {
	t.Parallel()

	log, _ := logger.NewTestLogger(t)
	handler := Trace(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get(shared.TraceHeader), 32)
}

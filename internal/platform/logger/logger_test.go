package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/fesoni/internal/config"
	"github.com/phrazzld/fesoni/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWithWriter(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	buf := &logger.TestLogBuffer{}
	log, err := logger.SetupWithWriter(config.ServerConfig{Port: 8080, LogLevel: "warn"}, buf)
	require.NoError(t, err)
	require.NotNil(t, log)

	log.Info("hidden")
	log.Warn("visible", "component", "test")

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "visible", entries[0]["msg"])
	assert.Equal(t, "test", entries[0]["component"])

	// Level changes apply to existing loggers
	require.NoError(t, logger.SetLevel("debug"))
	log.Debug("now visible")
	logger.AssertLogContains(t, buf, "now visible")

	require.NoError(t, logger.SetLevel("info"))
}

func TestSetupRejectsInvalidLevel(t *testing.T) {
	_, err := logger.SetupWithWriter(config.ServerConfig{LogLevel: "verbose"}, &logger.TestLogBuffer{})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logger.ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Default(), logger.FromContext(context.Background()))

	log, buf := logger.NewTestLogger(t)
	ctx := logger.WithLogger(context.Background(), log)
	logger.FromContext(ctx).Info("from context")

	logger.AssertLogContains(t, buf, "from context")
}

package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceContextHandler_AddsIDs(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&buf, "info", "text")

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = WithRunID(ctx, "run-7")

	logger.InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, "request_id=req-1")
	assert.Contains(t, out, "run_id=run-7")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestNewLogger_DebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&buf, "info", "json")
	logger.Debug("hidden")

	assert.Empty(t, buf.String())
}

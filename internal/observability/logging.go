package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// requestIDKey is the context key for the request ID (X-Request-ID).
// Middleware sets it; the TraceContextHandler adds it to log records.
type requestIDKey struct{}

// RequestIDKey is the context key for storing the request ID.
var RequestIDKey = &requestIDKey{}

type runIDKey struct{}

// RunIDKey is the context key for the clustering run id. The pipeline sets it for the lifetime of a run.
var RunIDKey = &runIDKey{}

// WithRunID returns ctx carrying runID for log correlation.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// TraceContextHandler wraps a slog.Handler and injects trace_id, span_id, request_id and run_id
// from the context into each log record when present.
type TraceContextHandler struct {
	inner slog.Handler
}

// NewTraceContextHandler returns a handler that adds trace context, request_id and run_id to records.
func NewTraceContextHandler(inner slog.Handler) *TraceContextHandler {
	return &TraceContextHandler{inner: inner}
}

// Enabled reports whether the inner handler is enabled for the given level.
func (h *TraceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds the context attributes to the record, then forwards to the inner handler.
func (h *TraceContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}

	if id, ok := ctx.Value(RunIDKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("run_id", id))
	}

	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("inner handler: %w", err)
	}

	return nil
}

// WithAttrs returns a handler whose attributes are the concatenation of the inner's and attrs.
func (h *TraceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceContextHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a handler for the given group.
func (h *TraceContextHandler) WithGroup(name string) slog.Handler {
	return &TraceContextHandler{inner: h.inner.WithGroup(name)}
}

// ParseLogLevel maps debug/info/warn/error to a slog.Level; anything else is info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger: text or json output wrapped in a TraceContextHandler.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(level)}

	var inner slog.Handler
	if strings.EqualFold(format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}

	return slog.New(NewTraceContextHandler(inner))
}

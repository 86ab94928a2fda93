package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// statusWriter records the status code and size of a response.
type statusWriter struct {
	http.ResponseWriter

	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	n, err := w.ResponseWriter.Write(p)
	w.bytes += n

	return n, err //nolint:wrapcheck // pass-through writer
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}

	return w.status
}

// Logging writes one access log line per request. Health checks log at debug.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(sw, r)

		level := slog.LevelInfo
		if r.URL.Path == "/health" {
			level = slog.LevelDebug
		}

		slog.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.code(),
			"bytes", sw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// ProblemRecorder counts problem responses by status. Pass nil when metrics are disabled.
type ProblemRecorder interface {
	RecordProblem(ctx context.Context, status int)
}

// Problems records every 4xx and 5xx response on recorder.
func Problems(recorder ProblemRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			if status := sw.code(); status >= http.StatusBadRequest {
				recorder.RecordProblem(r.Context(), status)
			}
		})
	}
}

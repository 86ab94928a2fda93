package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

const healthPingTimeout = 2 * time.Second

// HealthHandler handles health check requests.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a new health handler. db may be nil to skip the database check.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check handles GET /health. It answers 503 when the database is unreachable.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			slog.WarnContext(r.Context(), "health check: database unreachable", "error", err)
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)

			return
		}
	}

	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health check response", "error", err)
	}
}

// Package handlers holds the HTTP handlers of the themes API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/formbricks/themes/internal/api/response"
	"github.com/formbricks/themes/internal/huberrors"
)

// respondServiceError maps service errors to problem responses. Unexpected errors are logged and
// hidden behind a generic 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, huberrors.ErrNotFound):
		response.RespondNotFound(w, err.Error())
	case errors.Is(err, huberrors.ErrValidation):
		response.RespondBadRequest(w, err.Error())
	case errors.Is(err, huberrors.ErrConflict):
		response.RespondConflict(w, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		response.RespondInternalServerError(w, "An unexpected error occurred")
	}
}

// pathUUID parses the {name} path parameter, answering 400 when it is not a UUID.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")

		return uuid.Nil, false
	}

	return id, true
}

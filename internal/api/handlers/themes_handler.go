package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/formbricks/themes/internal/api/response"
	"github.com/formbricks/themes/internal/api/validation"
	"github.com/formbricks/themes/internal/models"
)

// ThemesService reads the current theme generation.
type ThemesService interface {
	ListCurrent(ctx context.Context, filters *models.ListThemesFilters) ([]models.ThemeWithMetrics, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.ThemeWithMetrics, error)
	Similar(ctx context.Context, id uuid.UUID, limit int) ([]models.ThemeWithScore, error)
	ListInsights(ctx context.Context, filters *models.ListInsightsFilters) ([]models.Insight, error)
	CurrentVersion(ctx context.Context) (int64, error)
}

// defaultSimilarLimit is the number of similar themes returned without a limit parameter.
const defaultSimilarLimit = 5

// ThemesHandler serves themes and insights.
type ThemesHandler struct {
	service ThemesService
}

// NewThemesHandler creates a new themes handler.
func NewThemesHandler(service ThemesService) *ThemesHandler {
	return &ThemesHandler{service: service}
}

// List handles GET /v1/themes?limit=&min_score=, highest score first, with the full score breakdown.
func (h *ThemesHandler) List(w http.ResponseWriter, r *http.Request) {
	var filters models.ListThemesFilters
	if err := validation.ValidateAndDecodeQueryParams(r, &filters); err != nil {
		validation.RespondDecodeError(w, err)

		return
	}

	version, err := h.service.CurrentVersion(r.Context())
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	themes, err := h.service.ListCurrent(r.Context(), &filters)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, models.ListThemesResponse{Version: version, Data: themes})
}

// Get handles GET /v1/themes/{id}.
func (h *ThemesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	theme, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, theme)
}

// Similar handles GET /v1/themes/{id}/similar?limit=.
func (h *ThemesHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var filters models.SimilarThemesFilters
	if err := validation.ValidateAndDecodeQueryParams(r, &filters); err != nil {
		validation.RespondDecodeError(w, err)

		return
	}

	if filters.Limit == 0 {
		filters.Limit = defaultSimilarLimit
	}

	similar, err := h.service.Similar(r.Context(), id, filters.Limit)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"data": similar})
}

// ListInsights handles GET /v1/insights?limit=&severity=&theme_id=, highest priority first.
func (h *ThemesHandler) ListInsights(w http.ResponseWriter, r *http.Request) {
	var filters models.ListInsightsFilters
	if err := validation.ValidateAndDecodeQueryParams(r, &filters); err != nil {
		validation.RespondDecodeError(w, err)

		return
	}

	insights, err := h.service.ListInsights(r.Context(), &filters)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"data": insights})
}

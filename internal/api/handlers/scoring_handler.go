package handlers

import (
	"net/http"

	"github.com/formbricks/themes/internal/api/response"
	"github.com/formbricks/themes/internal/api/validation"
	"github.com/formbricks/themes/internal/models"
	"github.com/formbricks/themes/internal/scoring"
)

// ScoringConfigStore holds the runtime scoring override.
type ScoringConfigStore interface {
	Get() (scoring.Config, bool)
	Set(cfg scoring.Config) error
	Reset()
}

// ScoringHandler reads and overrides the scoring configuration used by new runs.
type ScoringHandler struct {
	store ScoringConfigStore
}

// NewScoringHandler creates a new scoring handler.
func NewScoringHandler(store ScoringConfigStore) *ScoringHandler {
	return &ScoringHandler{store: store}
}

// Get handles GET /v1/scoring/config.
func (h *ScoringHandler) Get(w http.ResponseWriter, _ *http.Request) {
	h.respond(w)
}

// Update handles PUT /v1/scoring/config. The override applies to runs started afterwards.
func (h *ScoringHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateScoringConfigRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		validation.RespondDecodeError(w, err)

		return
	}

	err := h.store.Set(scoring.Config{Weights: req.Weights, SegmentPriorities: req.SegmentPriorities})
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	h.respond(w)
}

// Reset handles DELETE /v1/scoring/config and restores the configured defaults.
func (h *ScoringHandler) Reset(w http.ResponseWriter, _ *http.Request) {
	h.store.Reset()
	h.respond(w)
}

func (h *ScoringHandler) respond(w http.ResponseWriter) {
	cfg, overridden := h.store.Get()

	response.RespondJSON(w, http.StatusOK, models.ScoringConfigResponse{
		Weights:           cfg.Weights,
		SegmentPriorities: cfg.SegmentPriorities,
		Overridden:        overridden,
	})
}

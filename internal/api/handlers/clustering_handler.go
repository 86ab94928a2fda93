package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/formbricks/themes/internal/api/response"
	"github.com/formbricks/themes/internal/api/validation"
	"github.com/formbricks/themes/internal/models"
)

// ClusteringService starts clustering runs and reports their status.
type ClusteringService interface {
	Start(ctx context.Context, cfg models.RunConfig) (models.RunHandle, error)
	Status(ctx context.Context, id uuid.UUID) (models.RunStatus, error)
	Latest() models.RunStatus
	DefaultRunConfig() models.RunConfig
}

// ClusteringHandler handles HTTP requests for clustering runs.
type ClusteringHandler struct {
	service ClusteringService
}

// NewClusteringHandler creates a new clustering handler.
func NewClusteringHandler(service ClusteringService) *ClusteringHandler {
	return &ClusteringHandler{service: service}
}

// StartRunResponse is returned when a run is accepted.
type StartRunResponse struct {
	models.RunHandle

	StatusURL string `json:"status_url"`
}

// StartRun handles POST /v1/clustering/runs. The body is optional; fields it sets override the
// current defaults for this run only. Responds 202 with the run id, 409 while another run is in
// flight and 400 for an invalid configuration.
func (h *ClusteringHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req models.StartRunRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		validation.RespondDecodeError(w, err)

		return
	}

	cfg := req.ApplyTo(h.service.DefaultRunConfig())
	cfg.Trigger = models.TriggerAPI

	handle, err := h.service.Start(r.Context(), cfg)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusAccepted, StartRunResponse{
		RunHandle: handle,
		StatusURL: "/v1/clustering/runs/" + handle.RunID.String(),
	})
}

// Status handles GET /v1/clustering/status: the in-flight run, else the last finished one.
func (h *ClusteringHandler) Status(w http.ResponseWriter, _ *http.Request) {
	st := h.service.Latest()

	response.RespondJSON(w, http.StatusOK, models.ClusteringStatusResponse{
		RunStatus: st,
		IsRunning: st.IsRunning(),
	})
}

// GetRun handles GET /v1/clustering/runs/{id}.
func (h *ClusteringHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	st, err := h.service.Status(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, st)
}

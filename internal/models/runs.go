package models

import (
	"time"

	"github.com/google/uuid"
)

// RunState is the state of a clustering pipeline run.
type RunState string

// Run states. A run moves idle -> running -> completed | failed.
const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// RunTrigger records what started a run.
type RunTrigger string

// Run triggers.
const (
	TriggerAPI      RunTrigger = "api"
	TriggerSchedule RunTrigger = "schedule"
	TriggerCLI      RunTrigger = "cli"
)

// ScoreWeights are the composite score weights. The five positive weights are expected to sum to 1
// so the composite stays on a 0-100 scale after clamping.
type ScoreWeights struct {
	Frequency float64 `json:"frequency" validate:"gte=0,lte=1"`
	ACV       float64 `json:"acv" validate:"gte=0,lte=1"`
	Sentiment float64 `json:"sentiment" validate:"gte=0,lte=1"`
	Segment   float64 `json:"segment" validate:"gte=0,lte=1"`
	Trend     float64 `json:"trend" validate:"gte=0,lte=1"`
	Duplicate float64 `json:"duplicate" validate:"gte=0,lte=1"`
}

// DefaultScoreWeights returns the default weights.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Frequency: 0.35,
		ACV:       0.30,
		Sentiment: 0.10,
		Segment:   0.15,
		Trend:     0.10,
		Duplicate: 0.10,
	}
}

// SegmentPriorities maps each segment to its priority constant.
type SegmentPriorities struct {
	Enterprise float64 `json:"ENT" validate:"gte=0,lte=1"` //nolint:tagliatelle // segment codes
	MidMarket  float64 `json:"MM" validate:"gte=0,lte=1"`  //nolint:tagliatelle // segment codes
	SMB        float64 `json:"SMB" validate:"gte=0,lte=1"` //nolint:tagliatelle // segment codes
}

// DefaultSegmentPriorities returns ENT 1.0, MM 0.7, SMB 0.5.
func DefaultSegmentPriorities() SegmentPriorities {
	return SegmentPriorities{Enterprise: 1.0, MidMarket: 0.7, SMB: 0.5}
}

// For returns the priority for segment s, or 0 for an unknown segment.
func (p SegmentPriorities) For(s Segment) float64 {
	switch s {
	case SegmentEnterprise:
		return p.Enterprise
	case SegmentMidMarket:
		return p.MidMarket
	case SegmentSMB:
		return p.SMB
	default:
		return 0
	}
}

// RunConfig carries the per-run configuration.
type RunConfig struct {
	MinClusterSize    int               `json:"min_cluster_size" validate:"gte=2"`
	MinSamples        int               `json:"min_samples" validate:"gte=1"`
	Weights           ScoreWeights      `json:"weights"`
	SegmentPriorities SegmentPriorities `json:"segment_priorities"`
	LLMRefinement     bool              `json:"llm_refinement"`
	Trigger           RunTrigger        `json:"trigger,omitempty"`
}

// RunHandle identifies a started run.
type RunHandle struct {
	RunID     uuid.UUID `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// RunStatus is a snapshot of a run, safe to hand to pollers.
type RunStatus struct {
	RunID           uuid.UUID  `json:"run_id"`
	State           RunState   `json:"status"`
	Trigger         RunTrigger `json:"trigger,omitempty"`
	StartedAt       *time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	ThemesCreated   int        `json:"themes_created"`
	InsightsCreated int        `json:"insights_created"`
	ItemsEmbedded   int        `json:"items_embedded"`
	ItemsClustered  int        `json:"items_clustered"`
	NoiseCount      int        `json:"noise_count"`
	Error           *string    `json:"error"`
}

// IsRunning reports whether the run is in flight.
func (s RunStatus) IsRunning() bool {
	return s.State == RunStateRunning
}

// StartRunRequest is the optional body of a run request. Omitted fields keep the current defaults.
type StartRunRequest struct {
	MinClusterSize    *int               `json:"min_cluster_size" validate:"omitempty,gte=2"`
	MinSamples        *int               `json:"min_samples" validate:"omitempty,gte=1"`
	LLMRefinement     *bool              `json:"llm_refinement"`
	Weights           *ScoreWeights      `json:"weights"`
	SegmentPriorities *SegmentPriorities `json:"segment_priorities"`
}

// ApplyTo returns cfg with the fields set in r replaced.
func (r StartRunRequest) ApplyTo(cfg RunConfig) RunConfig {
	if r.MinClusterSize != nil {
		cfg.MinClusterSize = *r.MinClusterSize
	}

	if r.MinSamples != nil {
		cfg.MinSamples = *r.MinSamples
	}

	if r.LLMRefinement != nil {
		cfg.LLMRefinement = *r.LLMRefinement
	}

	if r.Weights != nil {
		cfg.Weights = *r.Weights
	}

	if r.SegmentPriorities != nil {
		cfg.SegmentPriorities = *r.SegmentPriorities
	}

	return cfg
}

// ClusteringStatusResponse is the latest run with a convenience running flag.
type ClusteringStatusResponse struct {
	RunStatus

	IsRunning bool `json:"is_running"`
}

// ScoringConfigResponse is the effective scoring configuration.
type ScoringConfigResponse struct {
	Weights           ScoreWeights      `json:"weights"`
	SegmentPriorities SegmentPriorities `json:"segment_priorities"`
	Overridden        bool              `json:"overridden"`
}

// UpdateScoringConfigRequest replaces the runtime scoring configuration.
type UpdateScoringConfigRequest struct {
	Weights           ScoreWeights      `json:"weights"`
	SegmentPriorities SegmentPriorities `json:"segment_priorities"`
}

// Package workers provides the River job workers that drive the clustering pipeline.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/models"
)

// ClusteringRunArgs requests one clustering pipeline run. A nil Config runs with the pipeline's
// current defaults, which include any runtime scoring override.
type ClusteringRunArgs struct {
	Trigger models.RunTrigger `json:"trigger"`
	Config  *models.RunConfig `json:"config,omitempty"`
}

// Kind returns the job type identifier for River.
func (ClusteringRunArgs) Kind() string { return "clustering_run" }

// ClusteringRunMaxAttempts bounds retries of a failed run.
const ClusteringRunMaxAttempts = 3

// InsertOpts keeps at most one clustering run waiting in the queue.
func (ClusteringRunArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: ClusteringRunMaxAttempts,
		UniqueOpts: river.UniqueOpts{
			// JobStatePending is required by River when using ByState.
			ByState: []rivertype.JobState{
				rivertype.JobStatePending,
				rivertype.JobStateAvailable,
				rivertype.JobStateRunning,
				rivertype.JobStateRetryable,
				rivertype.JobStateScheduled,
			},
		},
	}
}

// clusteringRunner is the part of the pipeline the worker needs.
type clusteringRunner interface {
	DefaultRunConfig() models.RunConfig
	Run(ctx context.Context, cfg models.RunConfig) (models.RunStatus, error)
}

// DefaultSnooze is how long a job waits when another run holds the pipeline.
const DefaultSnooze = time.Minute

// runTimeoutSlack covers the run status write that follows the pipeline timeout.
const runTimeoutSlack = time.Minute

// ClusteringRunWorker executes clustering_run jobs synchronously on the pipeline.
type ClusteringRunWorker struct {
	river.WorkerDefaults[ClusteringRunArgs]

	runner      clusteringRunner
	pipelineTTL time.Duration
	snooze      time.Duration
}

// NewClusteringRunWorker creates a worker. pipelineTimeout is the pipeline's own run timeout; the
// job timeout is derived from it so River never cancels a run the pipeline would still allow.
func NewClusteringRunWorker(runner clusteringRunner, pipelineTimeout time.Duration) *ClusteringRunWorker {
	return &ClusteringRunWorker{
		runner:      runner,
		pipelineTTL: pipelineTimeout,
		snooze:      DefaultSnooze,
	}
}

// Timeout limits how long a single run job can take.
func (w *ClusteringRunWorker) Timeout(*river.Job[ClusteringRunArgs]) time.Duration {
	return w.pipelineTTL + runTimeoutSlack
}

// Work runs the pipeline. A busy pipeline snoozes the job, an invalid configuration cancels it,
// and a failed run is returned so River retries it.
func (w *ClusteringRunWorker) Work(ctx context.Context, job *river.Job[ClusteringRunArgs]) error {
	cfg := w.runner.DefaultRunConfig()
	if job.Args.Config != nil {
		cfg = *job.Args.Config
	}

	cfg.Trigger = job.Args.Trigger
	if cfg.Trigger == "" {
		cfg.Trigger = models.TriggerSchedule
	}

	slog.InfoContext(ctx, "clustering job: starting run",
		"job_id", job.ID,
		"attempt", job.Attempt,
		"trigger", cfg.Trigger,
	)

	st, err := w.runner.Run(ctx, cfg)

	switch {
	case err == nil:
		slog.InfoContext(ctx, "clustering job: run finished",
			"job_id", job.ID,
			"run_id", st.RunID,
			"themes_created", st.ThemesCreated,
		)

		return nil
	case errors.Is(err, huberrors.ErrAlreadyRunning):
		slog.InfoContext(ctx, "clustering job: pipeline busy, snoozing",
			"job_id", job.ID,
			"snooze", w.snooze,
		)

		return river.JobSnooze(w.snooze)
	case errors.Is(err, huberrors.ErrValidation):
		slog.WarnContext(ctx, "clustering job: invalid run config, cancelling",
			"job_id", job.ID,
			"error", err,
		)

		return river.JobCancel(err)
	default:
		return fmt.Errorf("clustering run %s: %w", st.RunID, err)
	}
}

// PeriodicJobs returns the scheduled re-clustering job, or nil when interval is not positive.
func PeriodicJobs(interval time.Duration) []*river.PeriodicJob {
	if interval <= 0 {
		return nil
	}

	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ClusteringRunArgs{Trigger: models.TriggerSchedule}, nil
			},
			nil,
		),
	}
}

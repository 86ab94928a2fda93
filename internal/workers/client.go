package workers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// ClientOptions configures a working River client.
type ClientOptions struct {
	Runner           clusteringRunner
	PipelineTimeout  time.Duration
	MaxWorkers       int
	ScheduleInterval time.Duration // 0 disables scheduled runs
	Logger           *slog.Logger
}

// NewClient builds a River client that works clustering_run jobs and, when a schedule interval is
// set, enqueues them periodically. The caller starts and stops it.
func NewClient(db *pgxpool.Pool, opts ClientOptions) (*river.Client[pgx.Tx], error) {
	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, NewClusteringRunWorker(opts.Runner, opts.PipelineTimeout))

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: max(opts.MaxWorkers, 1)},
		},
		Workers:      riverWorkers,
		PeriodicJobs: PeriodicJobs(opts.ScheduleInterval),
		ErrorHandler: &ErrorHandler{},
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}

	return client, nil
}

// NewInsertOnlyClient builds a River client that can only enqueue jobs, for the CLI.
func NewInsertOnlyClient(db *pgxpool.Pool) (*river.Client[pgx.Tx], error) {
	client, err := river.NewClient(riverpgxv5.New(db), &river.Config{})
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}

	return client, nil
}

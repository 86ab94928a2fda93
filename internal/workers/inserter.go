package workers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// JobInserter enqueues clustering runs without exposing River to callers.
type JobInserter interface {
	// InsertClusteringRun enqueues a run. duplicate is true when a run was already waiting and no
	// new job was inserted.
	InsertClusteringRun(ctx context.Context, args ClusteringRunArgs) (jobID int64, duplicate bool, err error)
}

// RiverJobInserter implements JobInserter using the River client.
type RiverJobInserter struct {
	client *river.Client[pgx.Tx]
}

// NewRiverJobInserter creates a new River-based job inserter. An insert-only client (no workers,
// never started) is enough.
func NewRiverJobInserter(client *river.Client[pgx.Tx]) *RiverJobInserter {
	return &RiverJobInserter{client: client}
}

// InsertClusteringRun enqueues a clustering run with the uniqueness rules of ClusteringRunArgs.
func (r *RiverJobInserter) InsertClusteringRun(ctx context.Context, args ClusteringRunArgs) (int64, bool, error) {
	res, err := r.client.Insert(ctx, args, nil)
	if err != nil {
		return 0, false, fmt.Errorf("insert clustering run job: %w", err)
	}

	return res.Job.ID, res.UniqueSkippedAsDuplicate, nil
}

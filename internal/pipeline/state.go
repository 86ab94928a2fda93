package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/models"
)

// RunState is the state machine of the pipeline: at most one run is in flight, and a bounded
// history of finished runs stays queryable. All methods are safe for concurrent use and never block
// on a running pipeline.
type RunState struct {
	mu      sync.Mutex
	current *models.RunStatus
	latest  uuid.UUID
	history *lru.Cache[uuid.UUID, models.RunStatus]
}

// NewRunState keeps up to historySize finished runs.
func NewRunState(historySize int) *RunState {
	if historySize <= 0 {
		historySize = 1
	}

	// lru.New only fails on a non-positive size.
	history, _ := lru.New[uuid.UUID, models.RunStatus](historySize)

	return &RunState{history: history}
}

// begin moves idle -> running. It fails with ErrAlreadyRunning while another run is in flight.
func (s *RunState) begin(runID uuid.UUID, trigger models.RunTrigger, startedAt time.Time) (models.RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return models.RunStatus{}, huberrors.ErrAlreadyRunning
	}

	st := models.RunStatus{
		RunID:     runID,
		State:     models.RunStateRunning,
		Trigger:   trigger,
		StartedAt: &startedAt,
	}

	s.current = &st
	s.latest = runID

	return st, nil
}

// update applies fn to the in-flight run.
func (s *RunState) update(runID uuid.UUID, fn func(*models.RunStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.RunID == runID {
		fn(s.current)
	}
}

// finish moves running -> completed or failed and archives the run. runErr == nil means completed.
func (s *RunState) finish(runID uuid.UUID, completedAt time.Time, runErr error) models.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.RunID != runID {
		st, _ := s.history.Get(runID)

		return st
	}

	st := *s.current
	st.CompletedAt = &completedAt

	if runErr != nil {
		msg := runErr.Error()
		st.State = models.RunStateFailed
		st.Error = &msg
	} else {
		st.State = models.RunStateCompleted
	}

	s.history.Add(runID, st)
	s.current = nil

	return st
}

// Get returns a snapshot of run id from the in-flight run or the history.
func (s *RunState) Get(id uuid.UUID) (models.RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.RunID == id {
		return *s.current, true
	}

	return s.history.Get(id)
}

// Latest returns the most recently started run, or an idle status when none has run yet.
func (s *RunState) Latest() models.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return *s.current
	}

	if st, ok := s.history.Get(s.latest); ok {
		return st
	}

	return models.RunStatus{State: models.RunStateIdle}
}

// IsRunning reports whether a run is in flight.
func (s *RunState) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current != nil
}

// RunStore persists run snapshots so status survives restarts.
type RunStore interface {
	Save(ctx context.Context, s models.RunStatus) error
	Get(ctx context.Context, id uuid.UUID) (models.RunStatus, error)
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/models"
)

const runColumns = `id, state, trigger, started_at, completed_at, themes_created, insights_created,
	items_embedded, items_clustered, noise_count, error`

// RunsRepository persists clustering run history so status survives restarts.
type RunsRepository struct {
	db *pgxpool.Pool
}

// NewRunsRepository creates a new runs repository.
func NewRunsRepository(db *pgxpool.Pool) *RunsRepository {
	return &RunsRepository{db: db}
}

// Save inserts the run or overwrites the stored snapshot with the same id.
func (r *RunsRepository) Save(ctx context.Context, s models.RunStatus) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO clustering_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			completed_at = EXCLUDED.completed_at,
			themes_created = EXCLUDED.themes_created,
			insights_created = EXCLUDED.insights_created,
			items_embedded = EXCLUDED.items_embedded,
			items_clustered = EXCLUDED.items_clustered,
			noise_count = EXCLUDED.noise_count,
			error = EXCLUDED.error`,
		s.RunID, s.State, s.Trigger, s.StartedAt, s.CompletedAt, s.ThemesCreated, s.InsightsCreated,
		s.ItemsEmbedded, s.ItemsClustered, s.NoiseCount, s.Error,
	)
	if err != nil {
		return fmt.Errorf("save clustering run: %w", err)
	}

	return nil
}

// Get returns the stored snapshot of a run.
func (r *RunsRepository) Get(ctx context.Context, id uuid.UUID) (models.RunStatus, error) {
	s, err := scanRun(r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM clustering_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RunStatus{}, huberrors.NewNotFoundError("clustering_run", "run not found")
		}

		return models.RunStatus{}, fmt.Errorf("get clustering run: %w", err)
	}

	return s, nil
}

// List returns the most recent runs, newest first.
func (r *RunsRepository) List(ctx context.Context, limit int) ([]models.RunStatus, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+runColumns+` FROM clustering_runs ORDER BY started_at DESC NULLS LAST, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list clustering runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunStatus{}

	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clustering run: %w", err)
		}

		runs = append(runs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clustering runs: %w", err)
	}

	return runs, nil
}

func scanRun(row pgx.Row) (models.RunStatus, error) {
	var (
		s       models.RunStatus
		trigger *string
	)

	err := row.Scan(
		&s.RunID, &s.State, &trigger, &s.StartedAt, &s.CompletedAt, &s.ThemesCreated, &s.InsightsCreated,
		&s.ItemsEmbedded, &s.ItemsClustered, &s.NoiseCount, &s.Error,
	)
	if err != nil {
		return s, err
	}

	if trigger != nil {
		s.Trigger = models.RunTrigger(*trigger)
	}

	return s, nil
}

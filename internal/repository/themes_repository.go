package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/models"
)

// ThemesRepository owns the theme data of the current generation: themes, metrics, links and insights.
type ThemesRepository struct {
	db *pgxpool.Pool
}

// NewThemesRepository creates a new themes repository.
func NewThemesRepository(db *pgxpool.Pool) *ThemesRepository {
	return &ThemesRepository{db: db}
}

// ReplaceGeneration swaps the whole current generation for gen in a single transaction.
// Readers see either the previous generation or the new one, never a mix. Metrics, links and
// insights of the previous generation are removed by cascade.
func (r *ThemesRepository) ReplaceGeneration(ctx context.Context, gen models.Generation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin generation swap: %w", err)
	}

	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Warn("generation swap rollback failed", "error", rbErr)
		}
	}()

	deleted, err := tx.Exec(ctx, `DELETE FROM themes`)
	if err != nil {
		return fmt.Errorf("delete previous generation: %w", err)
	}

	batch := &pgx.Batch{}

	for _, t := range gen.Themes {
		batch.Queue(`
			INSERT INTO themes (id, version, run_id, label, description, centroid, label_metadata, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			t.ID, gen.Version, gen.RunID, t.Label, t.Description, pgvector.NewHalfVector(t.Centroid),
			t.LabelMeta, t.CreatedAt, t.UpdatedAt,
		)
	}

	for _, m := range gen.Metrics {
		batch.Queue(`
			INSERT INTO theme_metrics (theme_id, accounts_30d, accounts_90d, acv_sum, sentiment, weekly_counts,
				frequency, acv, sentiment_lift, segment_priority, trend, duplicate_penalty, raw_score, score, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			m.ThemeID, m.Accounts30d, m.Accounts90d, m.ACVSum, m.Sentiment, m.WeeklyCounts,
			m.Frequency, m.ACV, m.SentimentLift, m.SegmentPriority, m.Trend, m.DuplicatePenalty,
			m.RawScore, m.Score, m.ComputedAt,
		)
	}

	for _, in := range gen.Insights {
		batch.Queue(`
			INSERT INTO insights (`+insightColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			in.ID, in.ThemeID, in.Title, in.Description, in.Impact, in.Recommendation, in.Severity, in.Effort,
			in.PriorityScore, in.KeyQuotes, in.SupportingFeedbackIDs, in.AffectedCustomers, in.CreatedAt,
		)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert generation: %w", err)
		}
	}

	if len(gen.Links) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"feedback_theme_links"},
			[]string{"feedback_id", "theme_id", "confidence"},
			pgx.CopyFromSlice(len(gen.Links), func(i int) ([]any, error) {
				l := gen.Links[i]

				return []any{l.FeedbackID, l.ThemeID, l.Confidence}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy feedback theme links: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit generation swap: %w", err)
	}

	slog.InfoContext(ctx, "generation replaced",
		"version", gen.Version,
		"run_id", gen.RunID,
		"themes_removed", deleted.RowsAffected(),
		"themes", len(gen.Themes),
		"links", len(gen.Links),
		"insights", len(gen.Insights),
	)

	return nil
}

// ListCurrent returns the themes of the current generation with their metrics.
func (r *ThemesRepository) ListCurrent(
	ctx context.Context, filters *models.ListThemesFilters,
) ([]models.ThemeWithMetrics, error) {
	query, args := buildThemeListQuery(filters)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	defer rows.Close()

	themes := []models.ThemeWithMetrics{}

	for rows.Next() {
		t, err := scanThemeWithMetrics(rows)
		if err != nil {
			return nil, err
		}

		themes = append(themes, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating themes: %w", err)
	}

	return themes, nil
}

// GetByID returns one theme of the current generation.
func (r *ThemesRepository) GetByID(ctx context.Context, id uuid.UUID) (models.ThemeWithMetrics, error) {
	row := r.db.QueryRow(ctx, "SELECT "+themeColumns+`
		FROM themes t
		JOIN theme_metrics m ON m.theme_id = t.id
		WHERE t.id = $1`, id)

	t, err := scanThemeWithMetrics(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ThemeWithMetrics{}, huberrors.NewNotFoundError("theme", "theme not found")
		}

		return models.ThemeWithMetrics{}, err
	}

	return t, nil
}

// Similar returns the themes whose centroids are closest to the centroid of theme id, by cosine
// distance (<=>), excluding the theme itself. Similarity = 1 - distance.
func (r *ThemesRepository) Similar(ctx context.Context, id uuid.UUID, limit int) ([]models.ThemeWithScore, error) {
	if limit <= 0 {
		limit = 10
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM themes WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check theme: %w", err)
	}

	if !exists {
		return nil, huberrors.NewNotFoundError("theme", "theme not found")
	}

	rows, err := r.db.Query(ctx, `
		SELECT t.id, t.label, 1 - (t.centroid <=> s.centroid) AS similarity
		FROM themes t, themes s
		WHERE s.id = $1 AND t.id != s.id
		ORDER BY t.centroid <=> s.centroid, t.id
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("similar themes: %w", err)
	}
	defer rows.Close()

	out := []models.ThemeWithScore{}

	for rows.Next() {
		var s models.ThemeWithScore
		if err := rows.Scan(&s.ThemeID, &s.Label, &s.Similarity); err != nil {
			return nil, fmt.Errorf("scan similar theme: %w", err)
		}

		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating similar themes: %w", err)
	}

	return out, nil
}

// ListInsights returns the insights of the current generation.
func (r *ThemesRepository) ListInsights(ctx context.Context, filters *models.ListInsightsFilters) ([]models.Insight, error) {
	query, args := buildInsightListQuery(filters)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	out := []models.Insight{}

	for rows.Next() {
		var in models.Insight
		if err := rows.Scan(
			&in.ID, &in.ThemeID, &in.Title, &in.Description, &in.Impact, &in.Recommendation, &in.Severity,
			&in.Effort, &in.PriorityScore, &in.KeyQuotes, &in.SupportingFeedbackIDs, &in.AffectedCustomers,
			&in.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}

		out = append(out, in)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating insights: %w", err)
	}

	return out, nil
}

// CurrentVersion returns the generation number of the stored themes, or 0 when there are none.
func (r *ThemesRepository) CurrentVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM themes`).Scan(&v); err != nil {
		return 0, fmt.Errorf("current generation version: %w", err)
	}

	return v, nil
}

func scanThemeWithMetrics(row pgx.Row) (models.ThemeWithMetrics, error) {
	var t models.ThemeWithMetrics

	m := &t.Metrics

	err := row.Scan(
		&t.ID, &t.Label, &t.Description, &t.Version, &t.LabelMeta, &t.CreatedAt, &t.UpdatedAt,
		&m.ThemeID, &m.Accounts30d, &m.Accounts90d, &m.ACVSum, &m.Sentiment, &m.WeeklyCounts,
		&m.Frequency, &m.ACV, &m.SentimentLift, &m.SegmentPriority, &m.Trend, &m.DuplicatePenalty,
		&m.RawScore, &m.Score, &m.ComputedAt,
		&t.MemberCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t, err
		}

		return t, fmt.Errorf("scan theme: %w", err)
	}

	return t, nil
}

package repository

import (
	"fmt"
	"strings"

	"github.com/formbricks/themes/internal/models"
)

// DefaultListLimit applies when a listing does not set a limit.
const DefaultListLimit = 100

const themeColumns = `
	t.id, t.label, t.description, t.version, t.label_metadata, t.created_at, t.updated_at,
	m.theme_id, m.accounts_30d, m.accounts_90d, m.acv_sum, m.sentiment, m.weekly_counts,
	m.frequency, m.acv, m.sentiment_lift, m.segment_priority, m.trend, m.duplicate_penalty,
	m.raw_score, m.score, m.computed_at,
	(SELECT COUNT(*) FROM feedback_theme_links l WHERE l.theme_id = t.id) AS member_count`

const insightColumns = `
	id, theme_id, title, description, impact, recommendation, severity, effort, priority_score,
	key_quotes, supporting_feedback_ids, affected_customers, created_at`

// buildThemeListQuery lists the current generation, highest score first.
func buildThemeListQuery(filters *models.ListThemesFilters) (query string, args []any) {
	query = "SELECT " + themeColumns + `
		FROM themes t
		JOIN theme_metrics m ON m.theme_id = t.id`

	argCount := 1

	if filters.MinScore != nil {
		query += fmt.Sprintf(" WHERE m.score >= $%d", argCount)
		args = append(args, *filters.MinScore)
		argCount++
	}

	query += " ORDER BY m.score DESC, t.id"

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)

	return query, args
}

// buildInsightListQuery lists insights of the current generation, highest priority first.
func buildInsightListQuery(filters *models.ListInsightsFilters) (query string, args []any) {
	query = "SELECT " + insightColumns + " FROM insights"

	var conditions []string

	argCount := 1

	if filters.Severity != nil {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", argCount))
		args = append(args, *filters.Severity)
		argCount++
	}

	if filters.ThemeID != nil {
		conditions = append(conditions, fmt.Sprintf("theme_id = $%d", argCount))
		args = append(args, *filters.ThemeID)
		argCount++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY priority_score DESC, created_at, id"

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)

	return query, args
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/formbricks/themes/internal/models"
)

// FeedbackRepository reads feedback items and stores their embeddings.
// The text of an item is never written here.
type FeedbackRepository struct {
	db *pgxpool.Pool
}

// NewFeedbackRepository creates a new feedback repository.
func NewFeedbackRepository(db *pgxpool.Pool) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// ListForClustering returns every item with non-blank text, ordered by id.
// Embedding is nil for items that have not been embedded yet.
func (r *FeedbackRepository) ListForClustering(ctx context.Context) ([]models.FeedbackItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, source, text, account, embedding, created_at, source_confidence, sentiment_score, metadata
		FROM feedback_items
		WHERE trim(text) != ''
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list feedback for clustering: %w", err)
	}
	defer rows.Close()

	items := []models.FeedbackItem{}

	for rows.Next() {
		var (
			item models.FeedbackItem
			vec  *pgvector.HalfVector
		)

		if err := rows.Scan(
			&item.ID, &item.Source, &item.Text, &item.Account, &vec, &item.CreatedAt,
			&item.SourceConfidence, &item.SentimentScore, &item.Metadata,
		); err != nil {
			return nil, fmt.Errorf("scan feedback item: %w", err)
		}

		if vec != nil {
			item.Embedding = vec.Slice()
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feedback items: %w", err)
	}

	return items, nil
}

// Insert bulk-loads new items with COPY. Embeddings are left for the next clustering run.
func (r *FeedbackRepository) Insert(ctx context.Context, items []models.FeedbackItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	n, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"feedback_items"},
		[]string{"id", "source", "text", "account", "created_at", "source_confidence", "sentiment_score", "metadata"},
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			it := items[i]

			var metadata any
			if len(it.Metadata) > 0 {
				metadata = string(it.Metadata)
			}

			return []any{
				it.ID, string(it.Source), it.Text, it.Account, it.CreatedAt,
				it.SourceConfidence, it.SentimentScore, metadata,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy feedback items: %w", err)
	}

	return n, nil
}

// EmbeddingDimensions returns the declared width of the embedding column, or 0 when the column
// has no fixed width.
func (r *FeedbackRepository) EmbeddingDimensions(ctx context.Context) (int, error) {
	var typmod int32

	err := r.db.QueryRow(ctx, `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = 'feedback_items'::regclass AND attname = 'embedding' AND NOT attisdropped
	`).Scan(&typmod)
	if err != nil {
		return 0, fmt.Errorf("read embedding column width: %w", err)
	}

	// pgvector stores the dimension count as the type modifier; -1 means unconstrained.
	return max(int(typmod), 0), nil
}

// UpdateEmbeddings stores the computed embeddings in one round trip. Embeddings are not theme data,
// so they are written as soon as they are computed, outside any generation swap.
func (r *FeedbackRepository) UpdateEmbeddings(ctx context.Context, embeddings map[uuid.UUID][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for id, vec := range embeddings {
		batch.Queue(`UPDATE feedback_items SET embedding = $1 WHERE id = $2`, pgvector.NewHalfVector(vec), id)
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update feedback embeddings: %w", err)
	}

	return nil
}

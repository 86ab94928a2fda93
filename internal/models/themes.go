package models

import (
	"time"

	"github.com/google/uuid"
)

// LabelMethod records how a theme label was produced.
type LabelMethod string

// Label methods.
const (
	LabelMethodKeywords LabelMethod = "keywords"
	LabelMethodLLM      LabelMethod = "llm"
)

// KeyphraseRanking records how keyphrases were ordered.
type KeyphraseRanking string

// Keyphrase rankings.
const (
	RankingEmbedding KeyphraseRanking = "embedding"
	RankingFrequency KeyphraseRanking = "frequency"
)

// LabelMetadata describes the provenance of a theme label.
type LabelMetadata struct {
	Method       LabelMethod      `json:"method"`
	Ranking      KeyphraseRanking `json:"ranking"`
	Keyphrases   []string         `json:"keyphrases"`
	KeywordLabel string           `json:"keyword_label"`
}

// Theme is one cluster of a pipeline run's output generation.
type Theme struct {
	ID          uuid.UUID     `json:"id"`
	Label       string        `json:"label"`
	Description string        `json:"description"`
	Centroid    []float32     `json:"-"`
	Version     int64         `json:"version"`
	LabelMeta   LabelMetadata `json:"label_metadata"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// FeedbackThemeLink joins a feedback item to a theme with a membership confidence in [0,1].
type FeedbackThemeLink struct {
	FeedbackID uuid.UUID `json:"feedback_id"`
	ThemeID    uuid.UUID `json:"theme_id"`
	Confidence float64   `json:"confidence"`
}

// ThemeMetrics holds every scoring input and component for one theme. Components are stored
// individually so callers can render the breakdown; missing data shows up as explicit zeros.
type ThemeMetrics struct {
	ThemeID          uuid.UUID `json:"theme_id"`
	Accounts30d      int       `json:"accounts_30d"`
	Accounts90d      int       `json:"accounts_90d"`
	ACVSum           float64   `json:"acv_sum"`
	Sentiment        float64   `json:"sentiment"`
	WeeklyCounts     []int     `json:"weekly_counts"`
	Frequency        float64   `json:"frequency"`
	ACV              float64   `json:"acv"`
	SentimentLift    float64   `json:"sentiment_lift"`
	SegmentPriority  float64   `json:"segment_priority"`
	Trend            float64   `json:"trend"`
	DuplicatePenalty float64   `json:"duplicate_penalty"`
	RawScore         float64   `json:"raw_score"`
	Score            float64   `json:"score"`
	ComputedAt       time.Time `json:"computed_at"`
}

// ThemeWithMetrics is a theme of the current generation joined with its metrics and member count.
type ThemeWithMetrics struct {
	Theme
	Metrics     ThemeMetrics `json:"metrics"`
	MemberCount int          `json:"member_count"`
}

// ThemeWithScore is a theme with a centroid similarity, returned by similar-theme lookups.
type ThemeWithScore struct {
	ThemeID    uuid.UUID `json:"theme_id"`
	Label      string    `json:"label"`
	Similarity float64   `json:"similarity"`
}

// Generation is the full output of one pipeline run, written as a single atomic replacement.
type Generation struct {
	Version  int64
	RunID    uuid.UUID
	Themes   []Theme
	Metrics  []ThemeMetrics
	Links    []FeedbackThemeLink
	Insights []Insight
}

// ListThemesFilters are the query parameters of the theme listing.
type ListThemesFilters struct {
	Limit    int      `form:"limit" validate:"omitempty,gte=1,lte=500"`
	MinScore *float64 `form:"min_score" validate:"omitempty,gte=0,lte=100"`
}

// SimilarThemesFilters are the query parameters of the similar-theme lookup.
type SimilarThemesFilters struct {
	Limit int `form:"limit" validate:"omitempty,gte=1,lte=50"`
}

// ListThemesResponse is the current generation's themes.
type ListThemesResponse struct {
	Version int64              `json:"version"`
	Data    []ThemeWithMetrics `json:"data"`
}

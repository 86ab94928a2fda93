// Package scoring computes the six-component theme priority score in two phases: per-theme raw
// scores, then a duplicate penalty that needs every raw score of the run.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/models"
	"github.com/formbricks/themes/internal/similarity"
)

// WeeklyBuckets is the number of trailing weeks in the trend series.
const WeeklyBuckets = 12

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Config holds the score weights and segment priorities of one run.
type Config struct {
	Weights           models.ScoreWeights      `json:"weights"`
	SegmentPriorities models.SegmentPriorities `json:"segment_priorities"`
}

// DefaultConfig returns the default weights and priorities.
func DefaultConfig() Config {
	return Config{
		Weights:           models.DefaultScoreWeights(),
		SegmentPriorities: models.DefaultSegmentPriorities(),
	}
}

// Measurement is the per-theme input of phase one: counts and sums only, nothing normalized.
type Measurement struct {
	ThemeID       uuid.UUID
	Centroid      []float32
	Accounts30d   int
	Accounts90d   int
	ACVSum        float64
	Sentiment     float64
	SegmentCounts map[models.Segment]int
	WeeklyCounts  []int
}

// RawScore is a measured theme with its five positive components and their weighted sum.
type RawScore struct {
	Measurement

	Frequency       float64
	ACV             float64
	SentimentLift   float64
	SegmentPriority float64
	Trend           float64
	Raw             float64
}

// Scorer scores themes under one Config. It holds no mutable state.
type Scorer struct {
	cfg Config
}

// NewScorer validates cfg and returns a Scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return &Scorer{cfg: cfg}, nil
}

// Config returns the scorer's configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Measure computes the raw inputs of one theme as of asOf. customers is keyed by account name;
// accounts with no customer record count toward frequency but add no ACV or segment. A customer with
// negative ACV is an invariant violation.
func (s *Scorer) Measure(themeID uuid.UUID, centroid []float32, items []models.FeedbackItem,
	customers map[string]models.Customer, asOf time.Time,
) (Measurement, error) {
	m := Measurement{
		ThemeID:       themeID,
		Centroid:      centroid,
		SegmentCounts: make(map[models.Segment]int, len(models.Segments)),
		WeeklyCounts:  make([]int, WeeklyBuckets),
	}

	accounts30 := make(map[string]struct{})
	accounts90 := make(map[string]struct{})
	resolved := make(map[string]struct{})

	var (
		sentimentSum float64
		sentimentN   int
	)

	since30 := asOf.Add(-30 * day)
	since90 := asOf.Add(-90 * day)

	for _, item := range items {
		account := item.AccountKey()

		if !item.CreatedAt.Before(since30) {
			accounts30[account] = struct{}{}
		}

		if !item.CreatedAt.Before(since90) {
			accounts90[account] = struct{}{}
		}

		if b, ok := weekBucket(item.CreatedAt, asOf); ok {
			m.WeeklyCounts[b]++
		}

		if item.SentimentScore != nil && !math.IsNaN(*item.SentimentScore) {
			sentimentSum += clamp(*item.SentimentScore, -1, 1)
			sentimentN++
		}

		customer, ok := customers[account]
		if !ok {
			continue
		}

		if customer.ACV < 0 || math.IsNaN(customer.ACV) {
			return Measurement{}, huberrors.NewInvariantViolationError(customer.Name,
				fmt.Sprintf("customer ACV must be non-negative, got %v", customer.ACV))
		}

		if customer.Segment != "" {
			m.SegmentCounts[customer.Segment]++
		}

		if _, seen := resolved[account]; !seen {
			resolved[account] = struct{}{}
			m.ACVSum += customer.ACV
		}
	}

	m.Accounts30d = len(accounts30)
	m.Accounts90d = len(accounts90)

	if sentimentN > 0 {
		m.Sentiment = sentimentSum / float64(sentimentN)
	}

	return m, nil
}

// weekBucket maps t to one of the trailing weekly buckets ending at asOf; 0 is the oldest week.
// Items newer than asOf land in the latest week.
func weekBucket(t, asOf time.Time) (int, bool) {
	age := asOf.Sub(t)
	if age < 0 {
		age = 0
	}

	idx := int(age / week)
	if idx >= WeeklyBuckets {
		return 0, false
	}

	return WeeklyBuckets - 1 - idx, true
}

// Rank normalizes frequency and ACV across the run and returns one RawScore per measurement,
// in input order.
func (s *Scorer) Rank(measurements []Measurement) []RawScore {
	var maxFreq, maxACV float64

	for _, m := range measurements {
		maxFreq = math.Max(maxFreq, frequencyValue(m.Accounts30d, m.Accounts90d))
		maxACV = math.Max(maxACV, m.ACVSum)
	}

	w := s.cfg.Weights
	out := make([]RawScore, len(measurements))

	for i, m := range measurements {
		r := RawScore{
			Measurement:     m,
			Frequency:       normalizeFrequency(frequencyValue(m.Accounts30d, m.Accounts90d), maxFreq),
			ACV:             normalizeACV(m.ACVSum, maxACV),
			SentimentLift:   sentimentLift(m.Sentiment),
			SegmentPriority: segmentPriority(m.SegmentCounts, s.cfg.SegmentPriorities),
			Trend:           trendMomentum(m.WeeklyCounts),
		}

		r.Raw = w.Frequency*r.Frequency +
			w.ACV*r.ACV +
			w.Sentiment*r.SentimentLift +
			w.Segment*r.SegmentPriority +
			w.Trend*r.Trend

		out[i] = r
	}

	return out
}

// ApplyDuplicatePenalty is phase two. Each theme is penalized 0.5*similarity for every theme with a
// strictly higher raw score whose centroid similarity exceeds 0.85, capped at 1. The final score is
// 100*clamp(raw - w_dup*penalty, 0, 1).
func (s *Scorer) ApplyDuplicatePenalty(raws []RawScore, computedAt time.Time) []models.ThemeMetrics {
	out := make([]models.ThemeMetrics, len(raws))

	for i, r := range raws {
		var penalty float64

		for j, other := range raws {
			if j == i || other.Raw <= r.Raw {
				continue
			}

			if sim := similarity.Similarity(r.Centroid, other.Centroid); sim > duplicateSimilarity {
				penalty += duplicateFactor * sim
			}
		}

		penalty = math.Min(penalty, maxDuplicatePenalty)

		out[i] = models.ThemeMetrics{
			ThemeID:          r.ThemeID,
			Accounts30d:      r.Accounts30d,
			Accounts90d:      r.Accounts90d,
			ACVSum:           r.ACVSum,
			Sentiment:        r.Sentiment,
			WeeklyCounts:     append([]int(nil), r.WeeklyCounts...),
			Frequency:        r.Frequency,
			ACV:              r.ACV,
			SentimentLift:    r.SentimentLift,
			SegmentPriority:  r.SegmentPriority,
			Trend:            r.Trend,
			DuplicatePenalty: penalty,
			RawScore:         r.Raw,
			Score:            100 * clamp(r.Raw-s.cfg.Weights.Duplicate*penalty, 0, 1),
			ComputedAt:       computedAt,
		}
	}

	return out
}

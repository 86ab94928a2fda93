package scoring

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/formbricks/themes/internal/models"
)

// Component constants.
const (
	recentWeight = 0.7
	olderWeight  = 0.3

	trendSlopeScale = 20.0
	trendBound      = 0.5

	duplicateSimilarity = 0.85
	duplicateFactor     = 0.5
	maxDuplicatePenalty = 1.0
)

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// frequencyValue is the recency-weighted distinct-account count of one theme.
func frequencyValue(accounts30d, accounts90d int) float64 {
	return recentWeight*float64(accounts30d) + olderWeight*float64(accounts90d)
}

// normalizeFrequency scales v into [0,1] against the run maximum, anchored at zero.
func normalizeFrequency(v, maxValue float64) float64 {
	if maxValue <= 0 {
		return 0
	}

	return clamp(v/maxValue, 0, 1)
}

// normalizeACV log-scales an ACV sum against the run maximum.
func normalizeACV(sum, maxSum float64) float64 {
	if maxSum <= 0 || sum <= 0 {
		return 0
	}

	return clamp(math.Log1p(sum)/math.Log1p(maxSum), 0, 1)
}

// sentimentLift rewards negative sentiment only.
func sentimentLift(avg float64) float64 {
	return clamp(-avg, 0, 1)
}

// segmentPriority is the volume-weighted mean priority of the segments that contributed feedback.
func segmentPriority(counts map[models.Segment]int, priorities models.SegmentPriorities) float64 {
	var total, weighted float64

	for _, seg := range models.Segments {
		n := float64(counts[seg])
		total += n
		weighted += n * priorities.For(seg)
	}

	if total == 0 {
		return 0
	}

	return clamp(weighted/total, 0, 1)
}

// trendMomentum is the least-squares slope of the weekly counts, scaled and clamped to [-0.5, 0.5].
func trendMomentum(weekly []int) float64 {
	if len(weekly) < 2 {
		return 0
	}

	xs := make([]float64, len(weekly))
	ys := make([]float64, len(weekly))

	var nonZero bool

	for i, c := range weekly {
		xs[i] = float64(i)
		ys[i] = float64(c)
		nonZero = nonZero || c != 0
	}

	if !nonZero {
		return 0
	}

	_, slope := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(slope) {
		return 0
	}

	return clamp(slope/trendSlopeScale, -trendBound, trendBound)
}

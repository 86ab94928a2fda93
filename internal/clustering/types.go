// Package clustering groups embedding vectors into themes with HDBSCAN over cosine distance.
package clustering

import (
	"github.com/google/uuid"

	"github.com/formbricks/themes/internal/huberrors"
)

// Noise is the label of points that belong to no cluster.
const Noise = -1

// Default parameters.
const (
	DefaultMinClusterSize   = 5
	DefaultMinSamples       = 3
	DefaultOutlierThreshold = 0.9
)

// Point is one embedded feedback item.
type Point struct {
	ID     uuid.UUID
	Vector []float32
}

// Assignment is the cluster label and membership probability of one point.
// Noise points carry Label Noise and Probability 0.
type Assignment struct {
	ID          uuid.UUID
	Label       int
	Probability float64
}

// Cluster is one discovered group. MemberIDs are in id order, Probabilities parallel MemberIDs.
type Cluster struct {
	Label         int
	MemberIDs     []uuid.UUID
	Probabilities []float64
	Centroid      []float32
}

// Result is the output of one clustering pass. Assignments are sorted by id.
type Result struct {
	Assignments []Assignment
	Clusters    []Cluster
	NoiseIDs    []uuid.UUID
}

// Config holds HDBSCAN parameters.
type Config struct {
	MinClusterSize int
	MinSamples     int
	// OutlierThreshold bounds the GLOSH score of members when the whole data set forms a single cluster.
	OutlierThreshold float64
}

// DefaultConfig returns min_cluster_size 5, min_samples 3, outlier threshold 0.9.
func DefaultConfig() Config {
	return Config{
		MinClusterSize:   DefaultMinClusterSize,
		MinSamples:       DefaultMinSamples,
		OutlierThreshold: DefaultOutlierThreshold,
	}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if c.MinClusterSize < 2 {
		return huberrors.NewValidationError("min_cluster_size", "min_cluster_size must be at least 2")
	}

	if c.MinSamples < 1 {
		return huberrors.NewValidationError("min_samples", "min_samples must be at least 1")
	}

	if c.OutlierThreshold < 0 || c.OutlierThreshold > 1 {
		return huberrors.NewValidationError("outlier_threshold", "outlier_threshold must be between 0 and 1")
	}

	return nil
}

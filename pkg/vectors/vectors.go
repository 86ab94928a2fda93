// Package vectors provides float32 embedding vector utilities (normalization, cosine similarity, centroids).
package vectors

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// NormalizeL2 normalizes vector to unit length in place. A zero vector is left unchanged.
func NormalizeL2(vector []float32) {
	var sumSquares float64

	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}

// ToFloat64 widens v for gonum routines.
func ToFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}

	return out
}

// ToFloat32 narrows v back to the storage precision.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}

	return out
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Returns 0 when the lengths differ or either vector has zero magnitude.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	return Cosine64(ToFloat64(a), ToFloat64(b))
}

// Cosine64 is Cosine for already widened vectors.
func Cosine64(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)

	if na == 0 || nb == 0 {
		return 0
	}

	sim := floats.Dot(a, b) / (na * nb)

	return math.Max(-1, math.Min(1, sim))
}

// Centroid returns the arithmetic mean of vecs renormalized to unit length.
// Returns nil for an empty input or when the vectors disagree on dimension.
func Centroid(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}

	dim := len(vecs[0])
	if dim == 0 {
		return nil
	}

	sum := make([]float64, dim)

	for _, v := range vecs {
		if len(v) != dim {
			return nil
		}

		floats.Add(sum, ToFloat64(v))
	}

	floats.Scale(1/float64(len(vecs)), sum)

	out := ToFloat32(sum)
	NormalizeL2(out)

	return out
}

// Package similarity provides an in-memory cosine similarity index over embedding vectors.
package similarity

import (
	"sort"

	"github.com/google/uuid"

	"github.com/formbricks/themes/pkg/vectors"
)

// Neighbor is one result of a nearest-neighbor query.
type Neighbor struct {
	ID         uuid.UUID
	Similarity float64
}

// Index is an in-memory collection of (id, vector) pairs. It is not safe for concurrent mutation;
// concurrent reads after construction are fine.
type Index struct {
	ids     []uuid.UUID
	vectors map[uuid.UUID][]float64
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{vectors: make(map[uuid.UUID][]float64)}
}

// Add inserts or replaces the vector for id.
func (idx *Index) Add(id uuid.UUID, vec []float32) {
	if _, ok := idx.vectors[id]; !ok {
		idx.ids = append(idx.ids, id)
	}

	idx.vectors[id] = vectors.ToFloat64(vec)
}

// Len returns the number of vectors in the index.
func (idx *Index) Len() int {
	return len(idx.ids)
}

// Nearest returns up to k neighbors of query ordered by descending cosine similarity; ties break by id.
func (idx *Index) Nearest(query []float32, k int) []Neighbor {
	if k <= 0 || len(query) == 0 || len(idx.ids) == 0 {
		return []Neighbor{}
	}

	q := vectors.ToFloat64(query)

	out := make([]Neighbor, 0, len(idx.ids))
	for _, id := range idx.ids {
		out = append(out, Neighbor{ID: id, Similarity: vectors.Cosine64(q, idx.vectors[id])})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}

		return out[i].ID.String() < out[j].ID.String()
	})

	if len(out) > k {
		out = out[:k]
	}

	return out
}

// Similarity returns the cosine similarity of a and b; 0 for empty or zero vectors.
func Similarity(a, b []float32) float64 {
	return vectors.Cosine(a, b)
}

// Centroid returns the normalized mean of the vectors stored under ids. Unknown ids are skipped;
// returns nil when none are known.
func (idx *Index) Centroid(ids []uuid.UUID) []float32 {
	vecs := make([][]float32, 0, len(ids))

	for _, id := range ids {
		if v, ok := idx.vectors[id]; ok {
			vecs = append(vecs, vectors.ToFloat32(v))
		}
	}

	return Centroid(vecs)
}

// Centroid returns the arithmetic mean of vecs renormalized to unit length, or nil for empty input.
func Centroid(vecs [][]float32) []float32 {
	return vectors.Centroid(vecs)
}

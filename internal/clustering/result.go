package clustering

import (
	"github.com/google/uuid"

	"github.com/formbricks/themes/pkg/vectors"
)

func allNoise(sorted []Point) *Result {
	res := &Result{
		Assignments: make([]Assignment, len(sorted)),
		Clusters:    []Cluster{},
		NoiseIDs:    make([]uuid.UUID, len(sorted)),
	}

	for i, p := range sorted {
		res.Assignments[i] = Assignment{ID: p.ID, Label: Noise}
		res.NoiseIDs[i] = p.ID
	}

	return res
}

// buildResult renumbers condensed cluster ids to 1..k in order of each cluster's first member.
// sorted is in id order, so a single pass assigns labels in that order.
func buildResult(sorted []Point, condensedLabels []int, probs []float64) *Result {
	res := &Result{
		Assignments: make([]Assignment, len(sorted)),
		Clusters:    []Cluster{},
		NoiseIDs:    []uuid.UUID{},
	}

	public := make(map[int]int)
	members := make(map[int][][]float32)

	for i, p := range sorted {
		cl := condensedLabels[i]
		if cl == Noise {
			res.Assignments[i] = Assignment{ID: p.ID, Label: Noise}
			res.NoiseIDs = append(res.NoiseIDs, p.ID)

			continue
		}

		label, ok := public[cl]
		if !ok {
			label = len(res.Clusters) + 1
			public[cl] = label
			res.Clusters = append(res.Clusters, Cluster{Label: label})
		}

		res.Assignments[i] = Assignment{ID: p.ID, Label: label, Probability: probs[i]}

		c := &res.Clusters[label-1]
		c.MemberIDs = append(c.MemberIDs, p.ID)
		c.Probabilities = append(c.Probabilities, probs[i])
		members[label] = append(members[label], p.Vector)
	}

	for i := range res.Clusters {
		res.Clusters[i].Centroid = vectors.Centroid(members[res.Clusters[i].Label])
	}

	return res
}

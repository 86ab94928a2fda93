package clustering

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/pkg/vectors"
)

// minDistance floors mutual reachability distances so lambda (1/distance) stays finite for duplicates.
const minDistance = 1e-10

// Engine runs HDBSCAN with cosine distance. It is stateless and safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Engine{cfg: cfg}, nil
}

// Cluster groups points. The output depends only on the set of (id, vector) pairs: input is sorted
// by id first and every tie is broken by position in that order. Fewer than MinClusterSize points
// yields all noise and no error.
func (e *Engine) Cluster(ctx context.Context, points []Point) (*Result, error) {
	sorted, err := prepare(points)
	if err != nil {
		return nil, err
	}

	n := len(sorted)
	if n < e.cfg.MinClusterSize {
		return allNoise(sorted), nil
	}

	data, dim := flatten(sorted)

	core, err := coreDistances(ctx, data, n, dim, e.cfg.MinSamples)
	if err != nil {
		return nil, err
	}

	mst, err := primMST(ctx, data, n, dim, core)
	if err != nil {
		return nil, err
	}

	floor := distanceFloor(mst)
	tree := buildLinkage(mst, n)
	ct := condense(tree, n, e.cfg.MinClusterSize, floor)

	labels, probs := ct.labelPoints(e.cfg.OutlierThreshold)

	return buildResult(sorted, labels, probs), nil
}

// prepare copies and sorts points by id, rejecting duplicates and inconsistent dimensions.
func prepare(points []Point) ([]Point, error) {
	sorted := make([]Point, len(points))
	copy(sorted, points)

	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0
	})

	for i := range sorted {
		if len(sorted[i].Vector) == 0 {
			return nil, huberrors.NewValidationError("vector", fmt.Sprintf("point %s has no vector", sorted[i].ID))
		}

		if len(sorted[i].Vector) != len(sorted[0].Vector) {
			return nil, huberrors.NewValidationError("vector",
				fmt.Sprintf("point %s has dimension %d, want %d", sorted[i].ID, len(sorted[i].Vector), len(sorted[0].Vector)))
		}

		if i > 0 && sorted[i].ID == sorted[i-1].ID {
			return nil, huberrors.NewValidationError("id", fmt.Sprintf("duplicate point id %s", sorted[i].ID))
		}
	}

	return sorted, nil
}

// flatten returns unit-normalized vectors laid out row-major.
func flatten(points []Point) ([]float64, int) {
	dim := len(points[0].Vector)
	data := make([]float64, 0, len(points)*dim)

	for _, p := range points {
		row := vectors.ToFloat64(p.Vector)
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}

		data = append(data, row...)
	}

	return data, dim
}

func cosineDistance(data []float64, dim, i, j int) float64 {
	d := 1 - floats.Dot(data[i*dim:(i+1)*dim], data[j*dim:(j+1)*dim])
	if d < 0 {
		return 0
	}

	return d
}

// coreDistances returns, per point, the distance to its (minSamples-1)-th nearest other point,
// i.e. the minSamples-th neighbor counting the point itself.
func coreDistances(ctx context.Context, data []float64, n, dim, minSamples int) ([]float64, error) {
	core := make([]float64, n)
	if minSamples <= 1 {
		return core, nil
	}

	k := min(minSamples-1, n-1) - 1
	buf := make([]float64, 0, n-1)

	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("core distances: %w", err)
		}

		buf = buf[:0]

		for j := range n {
			if j != i {
				buf = append(buf, cosineDistance(data, dim, i, j))
			}
		}

		sort.Float64s(buf)
		core[i] = buf[k]
	}

	return core, nil
}

type edge struct {
	a, b   int
	weight float64
}

// primMST builds the minimum spanning tree of the mutual reachability graph in O(n^2) without
// materializing the distance matrix.
func primMST(ctx context.Context, data []float64, n, dim int, core []float64) ([]edge, error) {
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)

	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]edge, 0, n-1)
	current := 0
	inTree[0] = true

	for len(edges) < n-1 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("spanning tree: %w", err)
		}

		next := -1

		for j := range n {
			if inTree[j] {
				continue
			}

			mr := max(cosineDistance(data, dim, current, j), core[current], core[j], minDistance)
			if mr < best[j] {
				best[j] = mr
				from[j] = current
			}

			if next == -1 || best[j] < best[next] {
				next = j
			}
		}

		inTree[next] = true
		edges = append(edges, edge{a: from[next], b: next, weight: best[next]})
		current = next
	}

	return edges, nil
}

// distanceFloor returns the smallest spanning tree weight above minDistance. Identical vectors merge
// at minDistance, and a lambda of 1/minDistance would dwarf every real density in the tree, so
// condensing treats them as merging at the tightest real distance instead. When every weight is
// degenerate the floor stays at minDistance.
func distanceFloor(mst []edge) float64 {
	floor := math.Inf(1)

	for _, e := range mst {
		if e.weight > minDistance {
			floor = min(floor, e.weight)
		}
	}

	if math.IsInf(floor, 1) {
		return minDistance
	}

	return floor
}

// linkage is a node of the single-linkage dendrogram. Nodes 0..n-1 are points; node n+k is the k-th merge.
type linkage struct {
	left, right int
	dist        float64
	size        int
}

func buildLinkage(mst []edge, n int) []linkage {
	sort.SliceStable(mst, func(i, j int) bool {
		if mst[i].weight != mst[j].weight {
			return mst[i].weight < mst[j].weight
		}

		ai, aj := min(mst[i].a, mst[i].b), min(mst[j].a, mst[j].b)
		if ai != aj {
			return ai < aj
		}

		return max(mst[i].a, mst[i].b) < max(mst[j].a, mst[j].b)
	})

	nodes := make([]linkage, n, 2*n-1)
	for i := range n {
		nodes[i] = linkage{left: -1, right: -1, size: 1}
	}

	uf := newUnionFind(2*n - 1)

	for _, e := range mst {
		ra, rb := uf.find(e.a), uf.find(e.b)
		id := len(nodes)
		nodes = append(nodes, linkage{left: ra, right: rb, dist: e.weight, size: nodes[ra].size + nodes[rb].size})
		uf.union(ra, id)
		uf.union(rb, id)
	}

	return nodes
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}

	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}

	return x
}

// union attaches x's root under to. to must be a root.
func (u *unionFind) union(x, to int) {
	u.parent[u.find(x)] = to
}

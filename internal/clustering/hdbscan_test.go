package clustering

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/themes/internal/huberrors"
)

const testDims = 16

func idFor(i int) uuid.UUID {
	var id uuid.UUID
	id[14] = byte(i >> 8)
	id[15] = byte(i)

	return id
}

func axis(dim int) []float32 {
	v := make([]float32, testDims)
	v[dim] = 1

	return v
}

// blob returns n points around the given axis, jittered in the trailing dimensions.
func blob(rng *rand.Rand, firstID, n, dim int, jitter float32) []Point {
	points := make([]Point, n)

	for i := range n {
		v := axis(dim)
		for d := 4; d < testDims; d++ {
			v[d] = jitter * float32(rng.NormFloat64())
		}

		points[i] = Point{ID: idFor(firstID + i), Vector: v}
	}

	return points
}

func labelsByID(res *Result) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(res.Assignments))
	for _, a := range res.Assignments {
		out[a.ID] = a.Label
	}

	return out
}

func TestEngine_FewerThanMinClusterSizeIsAllNoise(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	points := []Point{
		{ID: idFor(1), Vector: axis(0)},
		{ID: idFor(2), Vector: axis(0)},
		{ID: idFor(3), Vector: axis(1)},
		{ID: idFor(4), Vector: axis(1)},
	}

	res, err := engine.Cluster(context.Background(), points)
	require.NoError(t, err)

	assert.Empty(t, res.Clusters)
	assert.Len(t, res.NoiseIDs, 4)

	for _, a := range res.Assignments {
		assert.Equal(t, Noise, a.Label)
		assert.Zero(t, a.Probability)
	}
}

func TestEngine_EmptyInput(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	res, err := engine.Cluster(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Assignments)
	assert.Empty(t, res.Clusters)
}

func TestEngine_TwoSeparatedGroups(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	points := append(blob(rng, 0, 10, 0, 0.05), blob(rng, 100, 10, 1, 0.05)...)

	engine, err := NewEngine(Config{MinClusterSize: 6, MinSamples: 3, OutlierThreshold: DefaultOutlierThreshold})
	require.NoError(t, err)

	res, err := engine.Cluster(context.Background(), points)
	require.NoError(t, err)

	require.Len(t, res.Clusters, 2)
	assert.Empty(t, res.NoiseIDs)

	// Cluster 1 holds the smallest id.
	assert.Equal(t, 1, res.Clusters[0].Label)
	assert.Contains(t, res.Clusters[0].MemberIDs, idFor(0))
	assert.Len(t, res.Clusters[0].MemberIDs, 10)
	assert.Len(t, res.Clusters[1].MemberIDs, 10)

	labels := labelsByID(res)
	for i := range 10 {
		assert.Equal(t, 1, labels[idFor(i)])
		assert.Equal(t, 2, labels[idFor(100+i)])
	}

	for _, c := range res.Clusters {
		require.Len(t, c.Centroid, testDims)

		var norm float64
		for _, x := range c.Centroid {
			norm += float64(x) * float64(x)
		}

		assert.InDelta(t, 1.0, norm, 1e-5)

		for _, p := range c.Probabilities {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
		}
	}
}

func TestEngine_DeterministicAcrossInputOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))

	points := append(blob(rng, 0, 12, 0, 0.08), blob(rng, 50, 12, 1, 0.08)...)
	points = append(points, Point{ID: idFor(200), Vector: axis(2)}, Point{ID: idFor(201), Vector: axis(3)})

	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	first, err := engine.Cluster(context.Background(), points)
	require.NoError(t, err)

	shuffled := make([]Point, len(points))
	copy(shuffled, points)
	rand.New(rand.NewPCG(99, 1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	second, err := engine.Cluster(context.Background(), shuffled)
	require.NoError(t, err)

	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, labelsByID(first), labelsByID(second))

	third, err := engine.Cluster(context.Background(), points)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

// 20 near-identical complaints from one account plus 5 unrelated singletons: one theme, singletons are noise.
func TestEngine_SingleDenseGroupWithOutliers(t *testing.T) {
	points := make([]Point, 0, 25)
	for i := range 20 {
		points = append(points, Point{ID: idFor(i), Vector: axis(0)})
	}

	for i := range 5 {
		points = append(points, Point{ID: idFor(100 + i), Vector: axis(i + 1)})
	}

	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	res, err := engine.Cluster(context.Background(), points)
	require.NoError(t, err)

	require.Len(t, res.Clusters, 1)
	assert.Len(t, res.Clusters[0].MemberIDs, 20)
	assert.Len(t, res.NoiseIDs, 5)

	for i := range 5 {
		assert.Contains(t, res.NoiseIDs, idFor(100+i))
	}

	assert.InDeltaSlice(t, axis(0), res.Clusters[0].Centroid, 1e-6)
}

func TestEngine_JitteredGroupWithOutliers(t *testing.T) {
	rng := rand.New(rand.NewPCG(21, 8))

	points := blob(rng, 0, 20, 0, 0.03)
	for i := range 5 {
		points = append(points, Point{ID: idFor(100 + i), Vector: axis(i + 1)})
	}

	// A minimum cluster size above half the group rules out any internal split.
	engine, err := NewEngine(Config{MinClusterSize: 11, MinSamples: 3, OutlierThreshold: DefaultOutlierThreshold})
	require.NoError(t, err)

	res, err := engine.Cluster(context.Background(), points)
	require.NoError(t, err)

	require.Len(t, res.Clusters, 1)
	assert.Len(t, res.Clusters[0].MemberIDs, 20)
	assert.ElementsMatch(t,
		[]uuid.UUID{idFor(100), idFor(101), idFor(102), idFor(103), idFor(104)},
		res.NoiseIDs)
}

func TestEngine_ExactDuplicatesStayInTheirGroup(t *testing.T) {
	const dims = 24

	vec := func(tiltAxis int, tilt float32) []float32 {
		v := make([]float32, dims)
		v[0] = 1

		if tiltAxis > 0 {
			v[tiltAxis] = tilt
		}

		return v
	}

	var points []Point

	// 15 points tilted off axis 0, each on its own axis, all equally close to the axis itself.
	for i := range 15 {
		points = append(points, Point{ID: idFor(i), Vector: vec(i+1, 0.05)})
	}

	duplicates := make([]uuid.UUID, 5)
	for i := range 5 {
		duplicates[i] = idFor(50 + i)
		points = append(points, Point{ID: duplicates[i], Vector: vec(0, 0)})
	}

	var outliers []uuid.UUID

	for i := range 5 {
		v := make([]float32, dims)
		v[16+i] = 1

		outliers = append(outliers, idFor(100+i))
		points = append(points, Point{ID: idFor(100 + i), Vector: v})
	}

	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	res, err := engine.Cluster(context.Background(), points)
	require.NoError(t, err)

	require.Len(t, res.Clusters, 1)
	assert.Len(t, res.Clusters[0].MemberIDs, 20)
	assert.Subset(t, res.Clusters[0].MemberIDs, duplicates)
	assert.ElementsMatch(t, outliers, res.NoiseIDs)

	for _, a := range res.Assignments {
		if a.Label == Noise {
			continue
		}

		assert.Greater(t, a.Probability, 0.5, "member %s", a.ID)
		assert.LessOrEqual(t, a.Probability, 1.0)
	}
}

func TestEngine_RejectsBadInput(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	_, err = engine.Cluster(context.Background(), []Point{
		{ID: idFor(1), Vector: axis(0)},
		{ID: idFor(1), Vector: axis(1)},
	})
	require.ErrorIs(t, err, huberrors.ErrValidation)

	_, err = engine.Cluster(context.Background(), []Point{
		{ID: idFor(1), Vector: axis(0)},
		{ID: idFor(2), Vector: []float32{1, 0}},
	})
	require.ErrorIs(t, err, huberrors.ErrValidation)

	_, err = engine.Cluster(context.Background(), []Point{{ID: idFor(1)}})
	require.ErrorIs(t, err, huberrors.ErrValidation)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"min cluster size too small", Config{MinClusterSize: 1, MinSamples: 1}, true},
		{"min samples zero", Config{MinClusterSize: 5, MinSamples: 0}, true},
		{"outlier threshold above one", Config{MinClusterSize: 5, MinSamples: 3, OutlierThreshold: 1.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cfg)
			if tt.wantErr {
				require.ErrorIs(t, err, huberrors.ErrValidation)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))

	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = engine.Cluster(ctx, blob(rng, 0, 10, 0, 0.1))
	require.ErrorIs(t, err, context.Canceled)
}

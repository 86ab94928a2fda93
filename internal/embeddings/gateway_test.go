package embeddings

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/pkg/vectors"
)

type fakeProvider struct {
	dims   int
	embedF func(ctx context.Context, inputs []string) ([][]float32, error)
}

func (f *fakeProvider) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	return f.embedF(ctx, inputs)
}

func (f *fakeProvider) Dimensions() int { return f.dims }

// constant returns vectors of (len(text), 1) so tests can check order and truncation.
func constant(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = []float32{float32(len([]rune(in))), 1}
	}

	return out, nil
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}

	return math.Sqrt(s)
}

func TestGateway_Embed(t *testing.T) {
	var calls atomic.Int32

	var mu sync.Mutex

	var batchSizes []int

	provider := &fakeProvider{dims: 2, embedF: func(ctx context.Context, inputs []string) ([][]float32, error) {
		calls.Add(1)
		mu.Lock()
		batchSizes = append(batchSizes, len(inputs))
		mu.Unlock()

		return constant(ctx, inputs)
	}}

	g := NewGateway(provider, "mock", WithBatchSize(2), WithRetryBackoff(0))

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	vecs, err := g.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	assert.Equal(t, int32(3), calls.Load())
	assert.ElementsMatch(t, []int{2, 2, 1}, batchSizes)

	for i, v := range vecs {
		assert.InDelta(t, 1.0, norm(v), 1e-6, "vector %d not unit length", i)

		want := []float32{float32(i + 1), 1}
		vectors.NormalizeL2(want)
		assert.InDeltaSlice(t, want, v, 1e-6, "vector %d out of order", i)
	}
}

func TestGateway_EmptyInput(t *testing.T) {
	g := NewGateway(&fakeProvider{dims: 2, embedF: func(context.Context, []string) ([][]float32, error) {
		t.Fatal("provider must not be called")

		return nil, nil
	}}, "mock")

	vecs, err := g.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestGateway_BlankText(t *testing.T) {
	g := NewGateway(&fakeProvider{dims: 2, embedF: constant}, "mock")

	_, err := g.Embed(context.Background(), []string{"fine", "   \n"})
	assert.ErrorIs(t, err, huberrors.ErrValidation)
}

func TestGateway_TrimAndTruncate(t *testing.T) {
	var got []string

	g := NewGateway(&fakeProvider{dims: 2, embedF: func(ctx context.Context, inputs []string) ([][]float32, error) {
		got = append(got, inputs...)

		return constant(ctx, inputs)
	}}, "mock", WithMaxChars(5))

	_, err := g.Embed(context.Background(), []string{"  Héllo World  ", "Hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Héllo", "Hi"}, got)
}

func TestGateway_RetriesOnce(t *testing.T) {
	t.Run("succeeds on second attempt", func(t *testing.T) {
		var calls atomic.Int32

		g := NewGateway(&fakeProvider{dims: 2, embedF: func(ctx context.Context, inputs []string) ([][]float32, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("temporary")
			}

			return constant(ctx, inputs)
		}}, "openai", WithRetryBackoff(time.Millisecond))

		vecs, err := g.Embed(context.Background(), []string{"text"})
		require.NoError(t, err)
		assert.Len(t, vecs, 1)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("persistent failure is provider unavailable", func(t *testing.T) {
		var calls atomic.Int32

		g := NewGateway(&fakeProvider{dims: 2, embedF: func(context.Context, []string) ([][]float32, error) {
			calls.Add(1)

			return nil, errors.New("connection refused")
		}}, "openai", WithRetryBackoff(time.Millisecond))

		_, err := g.Embed(context.Background(), []string{"text"})
		require.Error(t, err)
		assert.ErrorIs(t, err, huberrors.ErrProviderUnavailable)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestGateway_DimensionMismatchNotRetried(t *testing.T) {
	var calls atomic.Int32

	g := NewGateway(&fakeProvider{dims: 3, embedF: func(ctx context.Context, inputs []string) ([][]float32, error) {
		calls.Add(1)

		return constant(ctx, inputs)
	}}, "google", WithRetryBackoff(time.Millisecond))

	_, err := g.Embed(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, huberrors.ErrProviderUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGateway_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	g := NewGateway(&fakeProvider{dims: 2, embedF: func(context.Context, []string) ([][]float32, error) {
		cancel()

		return nil, context.Canceled
	}}, "openai", WithRetryBackoff(time.Hour))

	_, err := g.Embed(ctx, []string{"text"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, huberrors.ErrProviderUnavailable)
}

func TestMockProvider(t *testing.T) {
	m := NewMockProvider(64)

	vecs, err := m.CreateEmbeddings(context.Background(), []string{
		"export to excel is broken",
		"excel export is broken again",
		"dark mode please",
		"!!!",
	})
	require.NoError(t, err)

	for _, v := range vecs {
		assert.Len(t, v, 64)
		assert.InDelta(t, 1.0, norm(v), 1e-5)
	}

	similar := vectors.Cosine(vecs[0], vecs[1])
	unrelated := vectors.Cosine(vecs[0], vecs[2])
	assert.Greater(t, similar, unrelated)

	again, err := m.CreateEmbeddings(context.Background(), []string{"export to excel is broken"})
	require.NoError(t, err)
	assert.Equal(t, vecs[0], again[0])

	_, err = m.CreateEmbeddings(context.Background(), []string{strings.Repeat(" ", 3)})
	assert.ErrorIs(t, err, ErrMockEmptyInput)
}

package embeddings

import (
	"context"
	"crypto/sha256"
	"errors"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/formbricks/themes/pkg/vectors"
)

var (
	// ErrMockEmptyInput is returned by MockProvider for blank texts.
	ErrMockEmptyInput = errors.New("mock: input text is empty")
	// ErrMockInvalidDims is returned when the mock is configured with a non-positive dimension.
	ErrMockInvalidDims = errors.New("mock: embedding dimensions must be positive")
)

// MockProvider generates deterministic embeddings by hashing word unigrams and bigrams into a
// fixed number of buckets. Texts sharing vocabulary land close together, so local runs produce
// meaningful clusters without an external provider.
type MockProvider struct {
	dimensions int
}

// NewMockProvider creates a mock provider with the given dimensions.
func NewMockProvider(dimensions int) *MockProvider {
	return &MockProvider{dimensions: dimensions}
}

// Dimensions returns the configured dimension.
func (m *MockProvider) Dimensions() int {
	return m.dimensions
}

// CreateEmbeddings returns a feature-hashed vector for each input.
func (m *MockProvider) CreateEmbeddings(_ context.Context, inputs []string) ([][]float32, error) {
	if m.dimensions <= 0 {
		return nil, ErrMockInvalidDims
	}

	out := make([][]float32, len(inputs))

	for i, in := range inputs {
		if strings.TrimSpace(in) == "" {
			return nil, ErrMockEmptyInput
		}

		out[i] = m.embed(in)
	}

	return out, nil
}

func (m *MockProvider) embed(text string) []float32 {
	vec := make([]float32, m.dimensions)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for i, w := range words {
		m.add(vec, w, 1)

		if i > 0 {
			m.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	if len(words) == 0 {
		// Punctuation-only text: fall back to a hash of the raw bytes.
		hash := sha256.Sum256([]byte(text))
		for i := range vec {
			vec[i] = float32(hash[i%len(hash)])/127.5 - 1.0
		}
	}

	vectors.NormalizeL2(vec)

	return vec
}

func (m *MockProvider) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(len(vec))) //nolint:gosec // G115: modulo of a positive length
	if sum&(1<<63) != 0 {
		weight = -weight
	}

	vec[idx] += weight
}

var _ Provider = (*MockProvider)(nil)

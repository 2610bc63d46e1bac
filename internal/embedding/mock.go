package embedding

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/hyperjump/kotae/pkg/utils"
)

// MockEmbedder is a deterministic bag-of-words embedder. Each lowercased word
// is hashed into one of Dimensions buckets and the counts are L2-normalized,
// so texts sharing vocabulary are close under cosine distance.
type MockEmbedder struct {
	dimensions int
	calls      atomic.Int64
	texts      atomic.Int64
}

// NewMockEmbedder returns a mock embedder with the given dimension.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns the bag-of-words vector for text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	m.texts.Add(1)
	return m.vector(text), nil
}

// EmbedBatch returns one vector per text.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	m.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *MockEmbedder) vector(text string) []float32 {
	vec := make([]float32, m.dimensions)
	words := SplitWords(text)
	if len(words) == 0 {
		v := float32(1 / math.Sqrt(float64(m.dimensions)))
		for i := range vec {
			vec[i] = v
		}
		return vec
	}
	for _, w := range words {
		vec[HashString(w)%m.dimensions]++
	}
	utils.NormalizeL2(vec)
	return vec
}

// Calls returns how many Embed or EmbedBatch calls reached the mock.
func (m *MockEmbedder) Calls() int64 { return m.calls.Load() }

// Texts returns how many texts the mock has embedded.
func (m *MockEmbedder) Texts() int64 { return m.texts.Load() }

// Dimensions returns the embedding dimension.
func (m *MockEmbedder) Dimensions() int { return m.dimensions }

// Close is a no-op.
func (m *MockEmbedder) Close() error { return nil }

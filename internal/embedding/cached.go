package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// CachedEmbedder wraps a provider so each distinct text is sent to it at most
// once while it stays cached. Concurrent Embed calls for the same text share
// one provider call; EmbedBatch sends only unique cache misses.
// Provider errors are returned as models.ErrEmbeddingUnavailable.
type CachedEmbedder struct {
	inner Embedder
	cache *EmbeddingCache
	group singleflight.Group
}

// NewCachedEmbedder wraps inner with an LRU cache of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: NewEmbeddingCache(capacity),
	}
}

// Embed returns the embedding for text.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v, nil
	}
	v, err, _ := e.group.Do(text, func() (interface{}, error) {
		if v, ok := e.cache.peek(text); ok {
			return v, nil
		}
		vec, err := e.inner.Embed(ctx, text)
		if err != nil {
			return nil, unavailable(err)
		}
		if err := e.checkDimensions(vec); err != nil {
			return nil, err
		}
		e.cache.Set(text, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// EmbedBatch returns embeddings for texts in order. Duplicates within the
// batch and cached texts are not sent to the provider.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	seen := make(map[string]bool)
	for i, t := range texts {
		if v, ok := e.cache.Get(t); ok {
			out[i] = v
			continue
		}
		if !seen[t] {
			seen[t] = true
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		vecs, err := e.inner.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, unavailable(err)
		}
		if len(vecs) != len(missing) {
			return nil, unavailable(fmt.Errorf("provider returned %d embeddings for %d texts", len(vecs), len(missing)))
		}
		fresh := make(map[string][]float32, len(missing))
		for i, t := range missing {
			if err := e.checkDimensions(vecs[i]); err != nil {
				return nil, err
			}
			fresh[t] = vecs[i]
		}
		for t, v := range fresh {
			e.cache.Set(t, v)
		}
		for i, t := range texts {
			if out[i] == nil {
				out[i] = fresh[t]
			}
		}
	}
	return out, nil
}

func (e *CachedEmbedder) checkDimensions(vec []float32) error {
	if want := e.inner.Dimensions(); want > 0 && len(vec) != want {
		return unavailable(fmt.Errorf("provider returned %d dimensions, expected %d", len(vec), want))
	}
	return nil
}

// Dimensions returns the provider's embedding dimension.
func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// CacheLen returns the number of cached embeddings.
func (e *CachedEmbedder) CacheLen() int {
	return e.cache.Len()
}

// CacheStats returns the cache's entry and hit/miss counts.
func (e *CachedEmbedder) CacheStats() CacheStats {
	return e.cache.Stats()
}

// Close closes the wrapped provider.
func (e *CachedEmbedder) Close() error {
	return e.inner.Close()
}

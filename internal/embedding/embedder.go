// Package embedding provides text embedding providers and a caching wrapper.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// unavailable wraps a provider error as ErrEmbeddingUnavailable unless it already is one.
// Context cancellation is passed through unchanged.
func unavailable(err error) error {
	if err == nil || errors.Is(err, models.ErrEmbeddingUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrEmbeddingUnavailable, err)
}

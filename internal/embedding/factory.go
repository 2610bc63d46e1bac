package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// New builds the configured provider wrapped in a CachedEmbedder.
// A missing API key or model is reported as models.ErrEmbeddingUnavailable.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (*CachedEmbedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var inner Embedder
	switch cfg.Provider {
	case "mock", "":
		inner = NewMockEmbedder(cfg.Dimensions)
	case "onnx":
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingUnavailable, err)
		}
		inner = e
	case "gemini":
		e, err := NewGeminiEmbedder(ctx, GeminiOptions{
			APIKey:            config.APIKey(cfg.APIKeyEnv),
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			RequestsPerMinute: cfg.RequestsPerMinute,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingUnavailable, err)
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	logger.Info("embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.Int("dimensions", inner.Dimensions()),
		zap.Int("cache_size", cfg.CacheSize))
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

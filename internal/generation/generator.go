// Package generation produces grounded answers from retrieved context.
package generation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// Generator answers question using only the supplied system context.
type Generator interface {
	Generate(ctx context.Context, systemContext, question string) (string, error)
	Close() error
}

// New builds the configured generator.
func New(ctx context.Context, cfg config.GenerationConfig, logger *zap.Logger) (Generator, error) {
	switch cfg.Provider {
	case "mock", "":
		return NewMockGenerator(), nil
	case "gemini":
		g, err := NewGeminiGenerator(ctx, GeminiOptions{
			APIKey:            config.APIKey(cfg.APIKeyEnv),
			Model:             cfg.Model,
			Temperature:       cfg.Temperature,
			MaxOutputTokens:   cfg.MaxOutputTokens,
			RequestsPerMinute: cfg.RequestsPerMinute,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrGenerationUnavailable, err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, models.ErrGenerationUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrGenerationUnavailable, err)
}

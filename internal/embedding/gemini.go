package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// geminiBatchLimit is the maximum number of texts per BatchEmbedContents request.
const geminiBatchLimit = 100

// GeminiEmbedder calls the Google Generative AI embedding API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      *genai.EmbeddingModel
	modelName  string
	dimensions int
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// GeminiOptions configures a GeminiEmbedder.
type GeminiOptions struct {
	APIKey            string
	Model             string
	Dimensions        int
	RequestsPerMinute int
	Logger            *zap.Logger
}

// NewGeminiEmbedder creates a client for the configured embedding model.
func NewGeminiEmbedder(ctx context.Context, opts GeminiOptions) (*GeminiEmbedder, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini embedder: missing API key")
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-004"
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 768
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 1500
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %w", err)
	}
	logger := opts.Logger
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini-embedding",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	rpm := opts.RequestsPerMinute
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return &GeminiEmbedder{
		client:     client,
		model:      client.EmbeddingModel(opts.Model),
		modelName:  opts.Model,
		dimensions: opts.Dimensions,
		breaker:    breaker,
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
		logger:     logger,
	}, nil
}

// Embed embeds a single text.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most geminiBatchLimit.
func (g *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := otel.Tracer("kotae/embedding").Start(ctx, "gemini.embed_batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.modelName),
		attribute.Int("gemini.texts", len(texts)),
	)

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := start + geminiBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := g.embedChunk(ctx, texts[start:end])
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			return nil, unavailable(err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (g *GeminiEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := g.breaker.Execute(func() (interface{}, error) {
		batch := g.model.NewBatch()
		for _, t := range texts {
			batch.AddContent(genai.Text(t))
		}
		return g.model.BatchEmbedContents(ctx, batch)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.logger.Warn("gemini embedding rejected by circuit breaker", zap.Error(err))
		}
		return nil, err
	}
	resp := res.(*genai.BatchEmbedContentsResponse)
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("gemini returned an empty embedding at %d", i)
		}
		vecs[i] = e.Values
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (g *GeminiEmbedder) Dimensions() int {
	return g.dimensions
}

// Close closes the underlying client.
func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

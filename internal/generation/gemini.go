package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// GeminiOptions configures a GeminiGenerator.
type GeminiOptions struct {
	APIKey            string
	Model             string
	Temperature       float32
	MaxOutputTokens   int32
	RequestsPerMinute int
	Logger            *zap.Logger
}

// GeminiGenerator calls a Gemini chat model behind a rate limiter and circuit breaker.
type GeminiGenerator struct {
	client  *genai.Client
	opts    GeminiOptions
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGeminiGenerator creates a Gemini client.
func NewGeminiGenerator(ctx context.Context, opts GeminiOptions) (*GeminiGenerator, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini generator: missing API key")
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 10
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini generator: %w", err)
	}
	logger := opts.Logger
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini-generation",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	burst := opts.RequestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &GeminiGenerator{
		client:  client,
		opts:    opts,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)*0.9/60.0), burst),
		logger:  logger,
	}, nil
}

// Generate sends systemContext as the system instruction and question as the user turn.
func (g *GeminiGenerator) Generate(ctx context.Context, systemContext, question string) (string, error) {
	ctx, span := otel.Tracer("kotae/generation").Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.opts.Model),
		attribute.Int("gemini.context_chars", len(systemContext)),
	)

	if err := g.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", unavailable(err)
	}

	res, err := g.breaker.Execute(func() (interface{}, error) {
		model := g.client.GenerativeModel(g.opts.Model)
		model.SetTemperature(g.opts.Temperature)
		if g.opts.MaxOutputTokens > 0 {
			model.SetMaxOutputTokens(g.opts.MaxOutputTokens)
		}
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemContext))
		resp, err := model.GenerateContent(ctx, genai.Text(question))
		if err != nil {
			return nil, err
		}
		text := responseText(resp)
		if text == "" {
			return nil, errors.New("gemini returned no text")
		}
		if resp.UsageMetadata != nil {
			span.SetAttributes(attribute.Int("gemini.total_tokens", int(resp.UsageMetadata.TotalTokenCount)))
		}
		return text, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("generation failed", zap.Error(err))
		return "", unavailable(err)
	}
	return res.(string), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// Close closes the client.
func (g *GeminiGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

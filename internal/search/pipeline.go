// Package search implements the retrieval pipeline: question embedding,
// nearest-neighbor retrieval, source deduplication, and grounded generation.
package search

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// InsufficientInformationAnswer is returned when retrieval finds nothing to ground an answer on.
const InsufficientInformationAnswer = "I don't have enough information in the uploaded documents to answer that question."

// DocumentNamer resolves a document id to its display name.
type DocumentNamer interface {
	DocumentName(ctx context.Context, id string) (string, bool)
}

// Pipeline answers questions from the documents in a vector.Manager.
type Pipeline struct {
	embedder  embedding.Embedder
	index     *vector.Manager
	generator generation.Generator
	namer     DocumentNamer
	config    config.RetrievalConfig
	logger    *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithDocumentNamer sets how document ids are turned into source names.
// Without one, sources are labeled with their document id.
func WithDocumentNamer(n DocumentNamer) PipelineOption {
	return func(p *Pipeline) { p.namer = n }
}

// NewPipeline creates a pipeline over the given collaborators.
func NewPipeline(
	embedder embedding.Embedder,
	index *vector.Manager,
	generator generation.Generator,
	cfg config.RetrievalConfig,
	opts ...PipelineOption,
) *Pipeline {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 4
	}
	if cfg.HistoryMessages <= 0 {
		cfg.HistoryMessages = 10
	}
	p := &Pipeline{
		embedder:  embedder,
		index:     index,
		generator: generator,
		config:    cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Answer retrieves passages for req.Question and generates an answer grounded on them.
// When nothing is retrieved the generator is not called and the fixed
// insufficient-information answer is returned. On generation failure the
// returned response still carries the retrieved sources.
func (p *Pipeline) Answer(ctx context.Context, req models.AskRequest) (*models.AskResponse, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer("kotae/search").Start(ctx, "pipeline.answer")
	defer span.End()

	k := p.resolveK(req.K)
	result, err := p.retrieve(ctx, req.Question, k)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.k", k), attribute.Int("retrieval.records", result.Len()))

	if result.Empty() {
		p.logger.Debug("no passages retrieved, returning fallback", zap.String("question", req.Question))
		return &models.AskResponse{
			Answer:                  InsufficientInformationAnswer,
			Sources:                 []models.Source{},
			InsufficientInformation: true,
			QueryTime:               time.Since(start).Milliseconds(),
		}, nil
	}

	names := p.resolveNames(ctx, result)
	resp := &models.AskResponse{
		Sources:  DedupeSources(result, names),
		Passages: toPassages(result, names),
	}

	history := TrimHistory(req.History, p.config.HistoryMessages)
	system := BuildSystemContext(FormatContext(result, names), history)
	answer, err := p.generator.Generate(ctx, system, req.Question)
	resp.QueryTime = time.Since(start).Milliseconds()
	if err != nil {
		p.logger.Warn("generation failed", zap.Error(err), zap.Int("sources", len(resp.Sources)))
		return resp, fmt.Errorf("generate answer: %w", err)
	}
	resp.Answer = answer
	p.logger.Debug("answered question",
		zap.Int("passages", result.Len()),
		zap.Int("sources", len(resp.Sources)),
		zap.Int64("query_time_ms", resp.QueryTime))
	return resp, nil
}

// Retrieve returns the passages Answer would ground on, with similarity scores.
func (p *Pipeline) Retrieve(ctx context.Context, question string, k int) ([]models.Passage, error) {
	req := models.AskRequest{Question: question, K: k}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	result, err := p.retrieve(ctx, req.Question, p.resolveK(req.K))
	if err != nil {
		return nil, err
	}
	return toPassages(result, p.resolveNames(ctx, result)), nil
}

func (p *Pipeline) retrieve(ctx context.Context, question string, k int) (*models.RetrievalResult, error) {
	queryEmbedding, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	result, err := p.index.Search(ctx, queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return FilterByMinScore(result, p.config.MinScore), nil
}

func (p *Pipeline) resolveK(k int) int {
	if k <= 0 {
		k = p.config.DefaultK
	}
	if p.config.MaxK > 0 && k > p.config.MaxK {
		k = p.config.MaxK
	}
	return k
}

func (p *Pipeline) resolveNames(ctx context.Context, result *models.RetrievalResult) map[string]string {
	names := make(map[string]string)
	for _, r := range result.Records {
		if _, ok := names[r.DocumentID]; ok {
			continue
		}
		name := r.DocumentID
		if p.namer != nil {
			if n, ok := p.namer.DocumentName(ctx, r.DocumentID); ok && n != "" {
				name = n
			}
		}
		names[r.DocumentID] = name
	}
	return names
}

// FilterByMinScore drops records whose similarity is below minScore.
// A non-positive minScore disables filtering.
func FilterByMinScore(result *models.RetrievalResult, minScore float64) *models.RetrievalResult {
	if result == nil {
		return &models.RetrievalResult{}
	}
	if minScore <= 0 {
		return result
	}
	out := &models.RetrievalResult{}
	for i, r := range result.Records {
		if result.Scores[i] >= minScore {
			out.Records = append(out.Records, r)
			out.Scores = append(out.Scores, result.Scores[i])
		}
	}
	return out
}

func toPassages(result *models.RetrievalResult, names map[string]string) []models.Passage {
	passages := make([]models.Passage, result.Len())
	for i, r := range result.Records {
		passages[i] = models.Passage{
			DocumentID: r.DocumentID,
			Document:   names[r.DocumentID],
			Page:       r.Page,
			ChunkIndex: r.ChunkIndex,
			Text:       r.Text,
			Score:      result.Scores[i],
		}
	}
	return passages
}

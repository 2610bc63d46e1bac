package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

type staticNamer map[string]string

func (n staticNamer) DocumentName(_ context.Context, id string) (string, bool) {
	name, ok := n[id]
	return name, ok
}

type brokenEmbedder struct{ embedding.Embedder }

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: provider down", models.ErrEmbeddingUnavailable)
}

type fixture struct {
	emb      *embedding.MockEmbedder
	manager  *vector.Manager
	gen      *generation.MockGenerator
	pipeline *Pipeline
}

func newFixture(t *testing.T, cfg config.RetrievalConfig) *fixture {
	t.Helper()
	f := &fixture{
		emb:     embedding.NewMockEmbedder(2048),
		manager: vector.NewManager(vector.MetricCosine),
		gen:     generation.NewMockGenerator(),
	}
	f.pipeline = NewPipeline(f.emb, f.manager, f.gen, cfg,
		WithDocumentNamer(staticNamer{"a": "handbook.pdf", "b": "menu.pdf"}))
	return f
}

func (f *fixture) insert(t *testing.T, doc string, chunks ...models.Chunk) {
	t.Helper()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := f.emb.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	records := make([]models.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = models.VectorRecord{Vector: vecs[i], Text: c.Text, DocumentID: doc, Page: c.Page, ChunkIndex: c.ChunkIndex}
	}
	if err := f.manager.Insert(context.Background(), records); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) loadHandbookAndMenu(t *testing.T) {
	f.insert(t, "a",
		models.Chunk{Text: "vacation policy employees receive twenty vacation days", Page: 1, ChunkIndex: 0},
		models.Chunk{Text: "vacation days carry over to the next year", Page: 1, ChunkIndex: 1},
		models.Chunk{Text: "unused vacation policy days are paid out", Page: 2, ChunkIndex: 2},
	)
	f.insert(t, "b",
		models.Chunk{Text: "soup salad bread", Page: 1, ChunkIndex: 0},
		models.Chunk{Text: "coffee tea juice", Page: 1, ChunkIndex: 1},
	)
}

// With nothing indexed the fallback is returned and the generator never runs.
func TestPipeline_EmptyIndexFallback(t *testing.T) {
	f := newFixture(t, config.RetrievalConfig{})
	resp, err := f.pipeline.Answer(context.Background(), models.AskRequest{Question: "What is the vacation policy?"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.InsufficientInformation || resp.Answer != InsufficientInformationAnswer {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Sources == nil || len(resp.Sources) != 0 {
		t.Errorf("sources = %#v, want empty non-nil", resp.Sources)
	}
	if len(f.gen.Calls()) != 0 {
		t.Error("generator must not be called when nothing is retrieved")
	}
}

func TestPipeline_MinScoreFallback(t *testing.T) {
	f := newFixture(t, config.RetrievalConfig{MinScore: 0.99})
	f.loadHandbookAndMenu(t)
	resp, err := f.pipeline.Answer(context.Background(), models.AskRequest{Question: "quantum chromodynamics"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.InsufficientInformation {
		t.Error("expected fallback when every score is below min_score")
	}
	if len(f.gen.Calls()) != 0 {
		t.Error("generator must not be called below the threshold")
	}
}

func TestPipeline_AnswerDedupesSourcesInRelevanceOrder(t *testing.T) {
	f := newFixture(t, config.RetrievalConfig{})
	f.loadHandbookAndMenu(t)
	f.gen.Answer = "Employees get twenty days."

	resp, err := f.pipeline.Answer(context.Background(), models.AskRequest{Question: "vacation policy days", K: 3})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "Employees get twenty days." || resp.InsufficientInformation {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.Passages) != 3 {
		t.Fatalf("passages = %d, want 3", len(resp.Passages))
	}
	for _, p := range resp.Passages {
		if p.DocumentID != "a" || p.Document != "handbook.pdf" {
			t.Errorf("unexpected passage %+v", p)
		}
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources = %+v, want two pages of handbook.pdf", resp.Sources)
	}
	if resp.Sources[0].Page == resp.Sources[1].Page {
		t.Error("sources should be unique by page")
	}
	if resp.Sources[0].Page != resp.Passages[0].Page {
		t.Error("sources should follow relevance order")
	}

	calls := f.gen.Calls()
	if len(calls) != 1 {
		t.Fatalf("generator calls = %d", len(calls))
	}
	if calls[0].Question != "vacation policy days" {
		t.Errorf("question = %q", calls[0].Question)
	}
	if !strings.Contains(calls[0].SystemContext, "[Source: handbook.pdf, Page 2]") {
		t.Errorf("context block missing source tags:\n%s", calls[0].SystemContext)
	}
}

func TestPipeline_KExceedingStoreReturnsAll(t *testing.T) {
	f := newFixture(t, config.RetrievalConfig{})
	f.loadHandbookAndMenu(t)
	passages, err := f.pipeline.Retrieve(context.Background(), "vacation", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) != 5 {
		t.Errorf("got %d passages, want all 5", len(passages))
	}
	for i := 1; i < len(passages); i++ {
		if passages[i].Score > passages[i-1].Score {
			t.Error("passages should be ordered by descending score")
		}
	}
}

func TestPipeline_MaxKCaps(t *testing.T) {
	f := newFixture(t, config.RetrievalConfig{MaxK: 2})
	f.loadHandbookAndMenu(t)
	passages, err := f.pipeline.Retrieve(context.Background(), "vacation", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) != 2 {
		t.Errorf("got %d passages, want max_k 2", len(passages))
	}
}

func TestPipeline_AfterDeleteOnlyRemainingDocument(t *testing.T) {
	f := newFixture(t, config.RetrievalConfig{})
	f.loadHandbookAndMenu(t)
	if n, err := f.manager.DeleteByDocument(context.Background(), "a"); err != nil || n != 3 {
		t.Fatalf("delete = %d, %v", n, err)
	}
	resp, err := f.pipeline.Answer(context.Background(), models.AskRequest{Question: "vacation policy"})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range resp.Sources {
		if s.DocumentID != "b" {
			t.Errorf("deleted document still cited: %+v", s)
		}
	}
}

func TestPipeline_GenerationFailureKeepsSources(t *testing.T) {
	f := newFixture(t, config.RetrievalConfig{})
	f.loadHandbookAndMenu(t)
	f.gen.Err = errors.New("model overloaded")
	resp, err := f.pipeline.Answer(context.Background(), models.AskRequest{Question: "vacation policy"})
	if !errors.Is(err, models.ErrGenerationUnavailable) {
		t.Fatalf("error = %v, want ErrGenerationUnavailable", err)
	}
	if resp == nil || len(resp.Sources) == 0 {
		t.Error("response should carry sources for diagnostics")
	}
}

func TestPipeline_EmbeddingFailure(t *testing.T) {
	f := newFixture(t, config.RetrievalConfig{})
	p := NewPipeline(brokenEmbedder{}, f.manager, f.gen, config.RetrievalConfig{})
	_, err := p.Answer(context.Background(), models.AskRequest{Question: "anything"})
	if !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("error = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestPipeline_InvalidRequest(t *testing.T) {
	f := newFixture(t, config.RetrievalConfig{})
	tests := []models.AskRequest{
		{Question: "   "},
		{Question: "ok", K: -1},
		{Question: "ok", History: []models.ChatMessage{{Role: "system", Content: "x"}}},
	}
	for _, req := range tests {
		if _, err := f.pipeline.Answer(context.Background(), req); !errors.Is(err, models.ErrInvalidArgument) {
			t.Errorf("Answer(%+v) error = %v, want ErrInvalidArgument", req, err)
		}
	}
	if len(f.gen.Calls()) != 0 {
		t.Error("invalid requests must not reach the generator")
	}
}

func TestPipeline_HistoryTrimmedIntoContext(t *testing.T) {
	f := newFixture(t, config.RetrievalConfig{HistoryMessages: 2})
	f.loadHandbookAndMenu(t)
	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "first question"},
		{Role: models.RoleAssistant, Content: "first answer"},
		{Role: models.RoleUser, Content: "second question"},
		{Role: models.RoleAssistant, Content: "second answer"},
	}
	if _, err := f.pipeline.Answer(context.Background(), models.AskRequest{Question: "vacation", History: history}); err != nil {
		t.Fatal(err)
	}
	sys := f.gen.Calls()[0].SystemContext
	if strings.Contains(sys, "first question") || !strings.Contains(sys, "second answer") {
		t.Errorf("history not trimmed to last 2 messages:\n%s", sys)
	}
}

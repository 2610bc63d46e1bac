package indexer

import (
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestChunker_Chunk(t *testing.T) {
	c := NewChunker(3, 1)
	chunks := c.Chunk([]models.Page{{Number: 1, Text: "one two three four five six seven"}})
	want := []string{"one two three", "three four five", "five six seven"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks: %+v", len(chunks), chunks)
	}
	for i, ch := range chunks {
		if ch.Text != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, ch.Text, want[i])
		}
		if ch.ChunkIndex != i || ch.Page != 1 {
			t.Errorf("chunk %d index=%d page=%d", i, ch.ChunkIndex, ch.Page)
		}
	}
}

func TestChunker_NeverCrossesPages(t *testing.T) {
	c := NewChunker(4, 1)
	chunks := c.Chunk([]models.Page{
		{Number: 1, Text: "a b c"},
		{Number: 3, Text: "d e f g h i"},
	})
	wantPages := []int{1, 3, 3}
	if len(chunks) != len(wantPages) {
		t.Fatalf("got %+v", chunks)
	}
	for i, ch := range chunks {
		if ch.Page != wantPages[i] {
			t.Errorf("chunk %d page = %d, want %d", i, ch.Page, wantPages[i])
		}
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d index = %d, indices must be contiguous", i, ch.ChunkIndex)
		}
		if ch.Page == 3 && strings.Contains(ch.Text, "c") {
			t.Errorf("chunk %d mixes pages: %q", i, ch.Text)
		}
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c := NewChunker(5, 1)
	if chunks := c.Chunk([]models.Page{{Number: 1, Text: "   \n\t  "}}); chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
}

func TestNewChunker_InvalidOverlap(t *testing.T) {
	c := NewChunker(3, 3)
	if c.chunkOverlap != 0 {
		t.Errorf("overlap >= size should reset to 0, got %d", c.chunkOverlap)
	}
	if chunks := c.Chunk([]models.Page{{Number: 1, Text: "a b c d"}}); len(chunks) != 2 {
		t.Errorf("got %d chunks, want 2", len(chunks))
	}
}

func TestPreprocess(t *testing.T) {
	if Preprocess("  a \n\n b\t c ") != "a b c" {
		t.Error("expected trimmed and collapsed spaces")
	}
}

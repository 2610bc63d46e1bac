package indexer

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Chunker splits pages into overlapping word-based chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits each page into overlapping windows. A chunk never spans two
// pages, and chunk indices run from 0 across the whole document.
func (c *Chunker) Chunk(pages []models.Page) []models.Chunk {
	var chunks []models.Chunk
	step := c.chunkSize - c.chunkOverlap
	for _, page := range pages {
		words := strings.Fields(page.Text)
		for i := 0; i < len(words); i += step {
			end := i + c.chunkSize
			if end > len(words) {
				end = len(words)
			}
			chunks = append(chunks, models.Chunk{
				Text:       strings.Join(words[i:end], " "),
				Page:       page.Number,
				ChunkIndex: len(chunks),
			})
			if end >= len(words) {
				break
			}
		}
	}
	return chunks
}

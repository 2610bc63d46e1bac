package search

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

const systemPreamble = `You are a document assistant. Answer the user's question using only the passages below.
If the passages do not contain the answer, say that the uploaded documents do not cover it.
Cite sources inline as (document, page N).`

// DedupeSources returns one Source per (document, page) in first-seen order.
func DedupeSources(result *models.RetrievalResult, names map[string]string) []models.Source {
	type key struct {
		doc  string
		page int
	}
	seen := make(map[key]bool)
	sources := make([]models.Source, 0, result.Len())
	for _, r := range result.Records {
		k := key{r.DocumentID, r.Page}
		if seen[k] {
			continue
		}
		seen[k] = true
		name := names[r.DocumentID]
		if name == "" {
			name = r.DocumentID
		}
		sources = append(sources, models.Source{DocumentID: r.DocumentID, Document: name, Page: r.Page})
	}
	return sources
}

// FormatContext renders passages in result order, each tagged with its source and page.
func FormatContext(result *models.RetrievalResult, names map[string]string) string {
	var b strings.Builder
	for i, r := range result.Records {
		if i > 0 {
			b.WriteString("\n\n")
		}
		name := names[r.DocumentID]
		if name == "" {
			name = r.DocumentID
		}
		fmt.Fprintf(&b, "[Source: %s, Page %d]\n%s", name, r.Page, strings.TrimSpace(r.Text))
	}
	return b.String()
}

// TrimHistory keeps the last limit messages.
func TrimHistory(history []models.ChatMessage, limit int) []models.ChatMessage {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

// BuildSystemContext combines the instructions, the context block, and prior turns.
func BuildSystemContext(contextBlock string, history []models.ChatMessage) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nPassages:\n")
	b.WriteString(contextBlock)
	if len(history) > 0 {
		b.WriteString("\n\nConversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, strings.TrimSpace(m.Content))
		}
	}
	return b.String()
}

package models

import (
	"fmt"
	"strings"
)

// Chat roles accepted in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one message of the conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source is a page-level citation. Two passages from the same page are one source.
type Source struct {
	DocumentID string `json:"document_id"`
	Document   string `json:"document"`
	Page       int    `json:"page"`
}

// AskRequest is a question with optional history and retrieval depth.
type AskRequest struct {
	Question string        `json:"question"`
	History  []ChatMessage `json:"history,omitempty"`
	K        int           `json:"k,omitempty"`
}

// Validate trims the question and rejects empty questions, negative k, and unknown history roles.
func (r *AskRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidArgument)
	}
	if r.K < 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, r.K)
	}
	for i, m := range r.History {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("%w: history[%d] has unknown role %q", ErrInvalidArgument, i, m.Role)
		}
	}
	return nil
}

// AskResponse is the answer with its deduplicated sources.
// InsufficientInformation is set when retrieval found nothing and the generator was not called.
type AskResponse struct {
	Answer                  string    `json:"answer"`
	Sources                 []Source  `json:"sources"`
	InsufficientInformation bool      `json:"insufficient_information"`
	Passages                []Passage `json:"passages,omitempty"`
	QueryTime               int64     `json:"query_time_ms"`
}

// Passage is a retrieved record formatted for API output.
type Passage struct {
	DocumentID string  `json:"document_id"`
	Document   string  `json:"document"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

package generation

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call records one Generate invocation.
type Call struct {
	SystemContext string
	Question      string
}

// MockGenerator returns a canned answer and records every call.
// When Err is set it is returned instead.
type MockGenerator struct {
	mu     sync.Mutex
	calls  []Call
	Answer string
	Err    error
}

// NewMockGenerator returns a generator that echoes the question.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate records the call and returns Answer, or a summary of the question.
func (m *MockGenerator) Generate(ctx context.Context, systemContext, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls = append(m.calls, Call{SystemContext: systemContext, Question: question})
	answer, err := m.Answer, m.Err
	m.mu.Unlock()
	if err != nil {
		return "", unavailable(err)
	}
	if answer != "" {
		return answer, nil
	}
	passages := strings.Count(systemContext, "[Source:")
	return fmt.Sprintf("Based on %d passage(s): %s", passages, question), nil
}

// Calls returns a copy of the recorded calls.
func (m *MockGenerator) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Close is a no-op.
func (m *MockGenerator) Close() error { return nil }

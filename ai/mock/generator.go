package mock

import (
	"context"
	"fmt"
)

// MockGenerator is a test double for ai.AnswerGenerator.
// It allows custom behavior injection via function fields.
type MockGenerator struct {
	// GenerateAnswerFunc is called by GenerateAnswer if set.
	// If nil, uses default canned behavior.
	GenerateAnswerFunc func(ctx context.Context, question string, passages []string) (string, error)

	callCount int
}

// NewMockGenerator creates a mock answer generator with default canned behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// GenerateAnswer returns a canned answer naming the question and passage count.
func (m *MockGenerator) GenerateAnswer(ctx context.Context, question string, passages []string) (string, error) {
	m.callCount++

	if m.GenerateAnswerFunc != nil {
		return m.GenerateAnswerFunc(ctx, question, passages)
	}

	return fmt.Sprintf("mock answer to %q based on %d passages", question, len(passages)), nil
}

// CallCount returns the number of times GenerateAnswer was called.
func (m *MockGenerator) CallCount() int {
	return m.callCount
}

// Reset clears the call count and any injected behavior.
func (m *MockGenerator) Reset() {
	m.callCount = 0
	m.GenerateAnswerFunc = nil
}

package mock

import "context"

// MockExtractor is a test double for ai.TextExtractor.
// It allows custom behavior injection via function fields.
type MockExtractor struct {
	// ExtractTextFunc is called by ExtractText if set.
	// If nil, returns the document bytes as-is.
	ExtractTextFunc func(ctx context.Context, data []byte, filename string) (string, error)

	callCount int
}

// NewMockExtractor creates a mock text extractor with default passthrough behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

// ExtractText returns the document bytes as a string.
func (m *MockExtractor) ExtractText(ctx context.Context, data []byte, filename string) (string, error) {
	m.callCount++

	if m.ExtractTextFunc != nil {
		return m.ExtractTextFunc(ctx, data, filename)
	}

	return string(data), nil
}

// CallCount returns the number of times ExtractText was called.
func (m *MockExtractor) CallCount() int {
	return m.callCount
}

// Reset clears the call count and any injected behavior.
func (m *MockExtractor) Reset() {
	m.callCount = 0
	m.ExtractTextFunc = nil
}

package services

import (
	"context"
	"sync"
)

// MockGenerator is a mock implementation of Generator for testing
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// Responses are returned in order when GenerateFunc is nil. Once
	// exhausted the last one repeats.
	Responses []string
	Tokens    int

	// Track calls for testing
	GenerateCalls []GenerateRequest

	mu sync.Mutex // protects all fields above
}

var _ Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock that answers with the given texts in order.
func NewMockGenerator(responses ...string) *MockGenerator {
	return &MockGenerator{
		Responses:     responses,
		Tokens:        100,
		GenerateCalls: make([]GenerateRequest, 0),
	}
}

// Generate records the call and returns the next scripted response.
func (m *MockGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, req)
	fn := m.GenerateFunc
	if fn != nil {
		m.mu.Unlock()
		return fn(ctx, req)
	}
	defer m.mu.Unlock()

	text := "Mock response"
	if len(m.Responses) > 0 {
		text = m.Responses[0]
		if len(m.Responses) > 1 {
			m.Responses = m.Responses[1:]
		}
	}
	return &GenerateResult{Text: text, TotalTokens: m.Tokens, Model: "mock"}, nil
}

// SetGenerateError sets up the mock to fail every call
func (m *MockGenerator) SetGenerateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = func(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
		return nil, err
	}
}

// Calls returns a copy of the recorded requests in a thread-safe way
func (m *MockGenerator) Calls() []GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GenerateRequest, len(m.GenerateCalls))
	copy(out, m.GenerateCalls)
	return out
}

// Reset clears all call tracking
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateCalls = make([]GenerateRequest, 0)
}

// MockImageGenerator is a mock ImageGenerator.
type MockImageGenerator struct {
	GenerateImageFunc func(ctx context.Context, prompt string) (string, error)
	Prompts           []string

	mu sync.Mutex
}

var _ ImageGenerator = (*MockImageGenerator)(nil)

func (m *MockImageGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	fn := m.GenerateImageFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, prompt)
	}
	return "data:image/png;base64,bW9jaw==", nil
}

package llm

import (
	"context"
	"sync"
)

// MockGenerator is a scripted Generator for tests.
//
// Responses and Errors are consumed in order on each Generate call. When
// the script runs out the last entry repeats. If both slices are set the
// error at the current index wins when non-nil.
type MockGenerator struct {
	// NameVal is returned by Name. Defaults to "mock".
	NameVal string

	// ModelVal is returned by Model. Defaults to "mock-model".
	ModelVal string

	// Responses are returned in order by successive Generate calls.
	Responses []Response

	// Errors are returned in order by successive Generate calls.
	// A nil entry means the call succeeds with the matching response.
	Errors []error

	mu      sync.Mutex
	calls   int
	prompts []string
}

// Name returns the configured name or "mock".
func (m *MockGenerator) Name() string {
	if m.NameVal == "" {
		return "mock"
	}
	return m.NameVal
}

// Model returns the configured model or "mock-model".
func (m *MockGenerator) Model() string {
	if m.ModelVal == "" {
		return "mock-model"
	}
	return m.ModelVal
}

// Generate returns the next scripted response or error.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)

	if len(m.Errors) > 0 {
		errIdx := idx
		if errIdx >= len(m.Errors) {
			errIdx = len(m.Errors) - 1
		}
		if err := m.Errors[errIdx]; err != nil {
			return Response{}, err
		}
	}

	if len(m.Responses) == 0 {
		return Response{Text: "mock response"}, nil
	}

	respIdx := idx
	if respIdx >= len(m.Responses) {
		respIdx = len(m.Responses) - 1
	}
	return m.Responses[respIdx], nil
}

// Calls returns how many times Generate has been invoked.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns a copy of the prompts seen so far, in call order.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

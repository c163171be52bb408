package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for the LLM Client interface. It blocks on
// ctx when Block is set so callers' timeouts can be exercised.
type MockClient struct {
	Response *Response
	Err      error
	Block    bool

	mu    sync.Mutex
	Calls []string // records prompts sent
}

// Complete records the call and returns the mock response.
func (m *MockClient) Complete(ctx context.Context, prompt string) (*Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, prompt)
	m.mu.Unlock()

	if m.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.Response, m.Err
}

// CallCount returns how many prompts were sent.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

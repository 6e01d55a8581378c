package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for Client.
// It returns canned responses in sequence and records every request.
type MockClient struct {
	mu sync.Mutex

	responses []string
	err       error
	chatFunc  func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	callIndex int

	// Calls records every request in order.
	Calls []ChatRequest
}

// NewMockClient creates a mock that cycles through the given responses.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// WithError makes every call return err.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithChatFunc replaces the canned behavior entirely.
func (m *MockClient) WithChatFunc(fn func(ctx context.Context, req ChatRequest) (*ChatResponse, error)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatFunc = fn
	return m
}

// Chat implements Client.
func (m *MockClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	idx := m.callIndex
	m.callIndex++
	chatFunc := m.chatFunc
	err := m.err
	m.mu.Unlock()

	if chatFunc != nil {
		return chatFunc(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	content := ""
	if len(m.responses) > 0 {
		content = m.responses[idx%len(m.responses)]
	}
	return &ChatResponse{Content: content, Model: "mock"}, nil
}

// CallCount returns the number of calls made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or nil if none were made.
func (m *MockClient) LastCall() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	req := m.Calls[len(m.Calls)-1]
	return &req
}

// Reset clears recorded calls and restarts the response sequence.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}

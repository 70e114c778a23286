package services

import (
	"context"
	"sync"

	"superzork/pkg/chat"
)

// MockLLM is a scriptable LLMService for tests.
type MockLLM struct {
	InitModelFunc  func(ctx context.Context, modelName string) error
	ChatStreamFunc func(ctx context.Context, messages []chat.Message, opts Options) (<-chan StreamChunk, error)

	// Chunks is streamed by the default ChatStream behavior when
	// ChatStreamFunc is nil.
	Chunks []string

	// Track calls for testing
	InitModelCalls  []string
	ChatStreamCalls []ChatStreamCall

	mu sync.Mutex // protects all fields above
}

type ChatStreamCall struct {
	Messages []chat.Message
	Opts     Options
}

// NewMockLLM creates a new mock LLM service.
func NewMockLLM() *MockLLM {
	return &MockLLM{
		InitModelCalls:  make([]string, 0),
		ChatStreamCalls: make([]ChatStreamCall, 0),
	}
}

// InitModel mocks model initialization.
func (m *MockLLM) InitModel(ctx context.Context, modelName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InitModelCalls = append(m.InitModelCalls, modelName)

	if m.InitModelFunc != nil {
		return m.InitModelFunc(ctx, modelName)
	}
	return nil
}

// ChatStream mocks a streamed reply. The default behavior yields Chunks in
// order followed by a Done chunk.
func (m *MockLLM) ChatStream(ctx context.Context, messages []chat.Message, opts Options) (<-chan StreamChunk, error) {
	m.mu.Lock()
	m.ChatStreamCalls = append(m.ChatStreamCalls, ChatStreamCall{Messages: messages, Opts: opts})
	fn := m.ChatStreamFunc
	chunks := m.Chunks
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages, opts)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for _, c := range chunks {
			select {
			case out <- StreamChunk{Content: c}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

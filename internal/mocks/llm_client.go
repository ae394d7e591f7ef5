package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"kcexplore/pkg/oracle/llm"
)

// MockLLMClient implements llm.LLMClient for testing.
// It provides configurable behavior for Complete.
//
//nolint:govet // fieldalignment: mock struct layout optimized for readability
type MockLLMClient struct {
	// CompleteFunc is called when Complete is invoked. Override to customize behavior.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)

	// CompleteCalls tracks all calls to Complete for verification.
	CompleteCalls []llm.CompletionRequest

	// modelName is the model name returned by GetModelName.
	modelName string

	// mu protects call tracking
	mu sync.Mutex
}

// NewMockLLMClient creates a new mock LLM client with default behavior.
// Default behavior: Complete answers "Mock response" with no usage.
func NewMockLLMClient() *MockLLMClient {
	m := &MockLLMClient{
		modelName: "mock-model",
	}
	m.RespondWith("Mock response")
	return m
}

// Complete implements llm.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, req)
	fn := m.CompleteFunc
	m.mu.Unlock()
	return fn(ctx, req)
}

// GetModelName implements llm.LLMClient.
func (m *MockLLMClient) GetModelName() string {
	return m.modelName
}

// Calls returns a copy of the recorded Complete requests.
func (m *MockLLMClient) Calls() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.CompletionRequest(nil), m.CompleteCalls...)
}

// LastPrompt returns the text of the last user message sent, or "".
func (m *MockLLMClient) LastPrompt() string {
	calls := m.Calls()
	if len(calls) == 0 {
		return ""
	}
	msgs := calls[len(calls)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// --- Configuration methods ---

// SetModelName sets the model name returned by GetModelName.
func (m *MockLLMClient) SetModelName(name string) {
	m.modelName = name
}

// OnComplete sets a custom handler for Complete calls.
func (m *MockLLMClient) OnComplete(fn func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = fn
}

// --- Error simulation helpers ---

// FailCompleteWith configures Complete to return the specified error.
func (m *MockLLMClient) FailCompleteWith(err error) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, err
	})
}

// --- Response helpers ---

// RespondWith configures Complete to return the specified content.
func (m *MockLLMClient) RespondWith(content string) {
	m.RespondWithUsage(content, llm.Usage{})
}

// RespondWithUsage configures Complete to return content with token usage.
func (m *MockLLMClient) RespondWithUsage(content string, usage llm.Usage) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{
			Content:    content,
			StopReason: "end_turn",
			Usage:      usage,
		}, nil
	})
}

// RespondInOrder answers successive calls with the given responses and fails
// once they run out.
func (m *MockLLMClient) RespondInOrder(responses ...llm.CompletionResponse) {
	var mu sync.Mutex
	next := 0
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(responses) {
			return llm.CompletionResponse{}, fmt.Errorf("mock client: no more responses")
		}
		resp := responses[next]
		next++
		return resp, nil
	})
}

// RespondByPrompt answers with the first rule whose marker occurs in the
// last user message. Unmatched prompts get an empty answer.
func (m *MockLLMClient) RespondByPrompt(rules ...PromptRule) {
	m.OnComplete(func(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		var prompt string
		if n := len(req.Messages); n > 0 {
			prompt = req.Messages[n-1].Content
		}
		for _, r := range rules {
			if strings.Contains(prompt, r.Marker) {
				if r.Err != nil {
					return llm.CompletionResponse{}, r.Err
				}
				return llm.CompletionResponse{Content: r.Answer, StopReason: "end_turn", Usage: r.Usage}, nil
			}
		}
		return llm.CompletionResponse{StopReason: "end_turn"}, nil
	})
}

// PromptRule is one canned answer for RespondByPrompt.
type PromptRule struct {
	Marker string
	Answer string
	Usage  llm.Usage
	Err    error
}

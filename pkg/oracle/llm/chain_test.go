package llm

import (
	"context"
	"strings"
	"testing"
)

func TestWrapClient(t *testing.T) {
	completeCalled := false

	client := WrapClient(
		func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			completeCalled = true
			return CompletionResponse{Content: "wrapped"}, nil
		},
		func() string { return "wrapped-model" },
	)

	ctx := context.Background()
	req := NewCompletionRequest([]CompletionMessage{NewUserMessage("test")})

	resp, err := client.Complete(ctx, req)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !completeCalled || resp.Content != "wrapped" {
		t.Errorf("Complete not delegated: called=%v content=%q", completeCalled, resp.Content)
	}

	if client.GetModelName() != "wrapped-model" {
		t.Errorf("expected 'wrapped-model', got %q", client.GetModelName())
	}
}

// tagging returns a middleware that appends tag to every reply.
func tagging(tag string) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				resp.Content += tag
				return resp, err
			},
			next.GetModelName,
		)
	}
}

func TestChainOrder(t *testing.T) {
	base := &mockLLMClient{
		completeFunc: func(context.Context, CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{Content: "base"}, nil
		},
	}

	client := Chain(base, tagging("-outer"), nil, tagging("-inner"))
	resp, err := client.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// inner wraps base first, so its tag is appended first
	if resp.Content != "base-inner-outer" {
		t.Errorf("unexpected order %q", resp.Content)
	}
	if client.GetModelName() != "mock-model" {
		t.Errorf("model name should pass through, got %q", client.GetModelName())
	}
}

func TestChainNoMiddleware(t *testing.T) {
	base := &mockLLMClient{}
	if Chain(base) != LLMClient(base) {
		t.Error("expected base client back")
	}
	resp, _ := Chain(base).Complete(context.Background(), CompletionRequest{})
	if !strings.Contains(resp.Content, "mock") {
		t.Errorf("unexpected content %q", resp.Content)
	}
}

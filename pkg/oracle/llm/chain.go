package llm

import (
	"context"
)

// Middleware decorates a client. Compose with Chain.
type Middleware func(next LLMClient) LLMClient

type funcs struct {
	complete func(context.Context, CompletionRequest) (CompletionResponse, error)
	model    func() string
}

func (f funcs) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f funcs) GetModelName() string { return f.model() }

// WrapClient builds an LLMClient from plain functions, so a middleware only
// writes the call it intercepts and forwards the model name to next.
func WrapClient(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	modelName func() string,
) LLMClient {
	return funcs{complete: complete, model: modelName}
}

// Chain wraps base so that the first middleware sees a request first:
// Chain(c, a, b) calls a, then b, then c. Nil entries are skipped.
func Chain(base LLMClient, middlewares ...Middleware) LLMClient {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		if mw := middlewares[i]; mw != nil {
			client = mw(client)
		}
	}
	return client
}

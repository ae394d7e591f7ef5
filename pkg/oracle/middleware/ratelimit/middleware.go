package ratelimit

import (
	"context"

	"kcexplore/pkg/oracle/llm"
	"kcexplore/pkg/tokens"
)

// Estimate returns the tokens a request may consume: its prompt plus the
// completion budget.
func Estimate(counter *tokens.Counter, req llm.CompletionRequest) int {
	n := req.MaxTokens
	for i := range req.Messages {
		n += counter.Count(req.Messages[i].Content)
	}
	return n
}

// Middleware takes the estimated tokens of each request from bucket before
// forwarding it. A nil bucket disables limiting.
func Middleware(bucket *Bucket, counter *tokens.Counter) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if bucket == nil {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if err := bucket.Acquire(ctx, Estimate(counter, req)); err != nil {
					return llm.CompletionResponse{}, err
				}
				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}
}

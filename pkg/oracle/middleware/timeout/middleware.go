// Package timeout bounds each oracle request with its own deadline.
package timeout

import (
	"context"
	"time"

	"kcexplore/pkg/oracle/llm"
)

// Middleware gives every request a fresh deadline of duration. A non-positive
// duration disables the bound.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if duration <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			next.GetModelName,
		)
	}
}

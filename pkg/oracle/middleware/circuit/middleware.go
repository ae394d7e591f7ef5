package circuit

import (
	"context"
	"errors"

	"kcexplore/pkg/oracle/llm"
	"kcexplore/pkg/oracle/llmerrors"
)

// Middleware rejects requests while the breaker is open. Caller cancellations
// and prompts the oracle refused are not counted as oracle failures.
func Middleware(breaker *Breaker) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					return llm.CompletionResponse{}, &Error{State: breaker.State()}
				}
				resp, err := next.Complete(ctx, req)
				breaker.Record(!countsAsFailure(err))
				return resp, err //nolint:wrapcheck // pass through unchanged
			},
			next.GetModelName,
		)
	}
}

func countsAsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return !llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt)
}

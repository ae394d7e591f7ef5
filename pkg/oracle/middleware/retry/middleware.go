package retry

import (
	"context"
	"fmt"
	"time"

	"kcexplore/pkg/logx"
	"kcexplore/pkg/oracle/llm"
	"kcexplore/pkg/oracle/llmerrors"
)

// Middleware wraps a client with retry logic. When every attempt fails with a
// retryable error the last error is wrapped as ServiceUnavailable.
func Middleware(policy *Policy) llm.Middleware {
	logger := logx.NewLogger("retry")

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var resp llm.CompletionResponse
				err := do(ctx, policy, logger, next.GetModelName(), func() error {
					var callErr error
					resp, callErr = next.Complete(ctx, req)
					return callErr
				})
				return resp, err
			},
			next.GetModelName,
		)
	}
}

func do(ctx context.Context, policy *Policy, logger *logx.Logger, model string, call func() error) error {
	var lastErr error

	for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if delay := policy.CalculateDelay(attempt); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return fmt.Errorf("retry cancelled: %w", ctx.Err())
				case <-timer.C:
				}
			}
		}

		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !policy.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt < policy.Config.MaxAttempts {
			logger.Warn("%s attempt %d/%d failed, retrying: %v", model, attempt, policy.Config.MaxAttempts, lastErr)
		}
	}

	return llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
}

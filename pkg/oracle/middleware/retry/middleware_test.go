package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcexplore/pkg/oracle/llm"
	"kcexplore/pkg/oracle/llmerrors"
)

type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return llm.CompletionResponse{}, s.errs[s.calls-1]
	}
	return llm.CompletionResponse{Content: "[kernel]"}, nil
}

func (s *scriptedClient) GetModelName() string { return "scripted" }

func fastPolicy(attempts int) *Policy {
	return NewPolicy(Config{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
	}, nil)
}

func TestMiddlewareRecoversFromTransientFailure(t *testing.T) {
	base := &scriptedClient{errs: []error{errors.New("connection reset"), errors.New("502 bad gateway")}}
	client := Middleware(fastPolicy(3))(base)

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "[kernel]", resp.Content)
	assert.Equal(t, 3, base.calls)
	assert.Equal(t, "scripted", client.GetModelName())
}

func TestMiddlewareStopsOnPermanentError(t *testing.T) {
	authErr := llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")
	base := &scriptedClient{errs: []error{authErr}}
	client := Middleware(fastPolicy(5))(base)

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))
	assert.Equal(t, 1, base.calls)
}

func TestMiddlewareExhaustionIsServiceUnavailable(t *testing.T) {
	transient := errors.New("timeout")
	base := &scriptedClient{errs: []error{transient, transient, transient}}
	client := Middleware(fastPolicy(3))(base)

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, llmerrors.IsServiceUnavailable(err))
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, base.calls)
}

func TestMiddlewareHonoursCancellation(t *testing.T) {
	base := &scriptedClient{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	policy := NewPolicy(Config{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 1}, nil)
	client := Middleware(policy)(base)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Complete(ctx, llm.CompletionRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, base.calls)
}

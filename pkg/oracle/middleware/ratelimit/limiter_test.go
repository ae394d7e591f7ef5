package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcexplore/internal/mocks"
	"kcexplore/pkg/oracle/llm"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBucket(tpm int) (*Bucket, *fakeClock) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := NewBucket(tpm)
	b.now = clock.now
	b.lastRefill = clock.t
	return b, clock
}

func TestBucketRefillsOverTime(t *testing.T) {
	b, clock := newTestBucket(600)

	require.True(t, b.TryAcquire(600))
	assert.False(t, b.TryAcquire(1))

	clock.t = clock.t.Add(30 * time.Second)
	assert.Equal(t, 300, b.Stats().Available)
	assert.True(t, b.TryAcquire(300))
	assert.False(t, b.TryAcquire(1))

	clock.t = clock.t.Add(time.Hour)
	assert.Equal(t, 600, b.Stats().Available, "refill caps at capacity")
}

func TestBucketClampsOversizedRequests(t *testing.T) {
	b, _ := newTestBucket(100)
	assert.True(t, b.TryAcquire(5000))
	assert.Equal(t, 0, b.Stats().Available)
}

func TestAcquireHonorsContext(t *testing.T) {
	b, _ := newTestBucket(10)
	require.True(t, b.TryAcquire(10))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Acquire(ctx, 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), b.Stats().Waits)
}

func TestNewBucketDisabled(t *testing.T) {
	assert.Nil(t, NewBucket(0))

	client := mocks.NewMockLLMClient()
	client.RespondWith("ok")
	wrapped := Middleware(nil, nil)(client)
	resp, err := wrapped.Complete(context.Background(), llm.CompletionRequest{MaxTokens: 1 << 20})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestMiddlewareChargesEstimate(t *testing.T) {
	b, _ := newTestBucket(1000)
	client := mocks.NewMockLLMClient()
	client.RespondWith("ok")

	req := llm.CompletionRequest{
		Messages:  []llm.CompletionMessage{{Role: llm.RoleUser, Content: "abcdefgh"}},
		MaxTokens: 100,
	}
	want := Estimate(nil, req)
	assert.Equal(t, 102, want) // 8 chars at 4 per token without a counter

	_, err := Middleware(b, nil)(client).Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1000-want, b.Stats().Available)
}

// Package ratelimit keeps oracle traffic under a tokens-per-minute quota.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"kcexplore/pkg/logx"
)

// pollInterval is how long Acquire sleeps between checks of an empty bucket.
const pollInterval = 100 * time.Millisecond

// Bucket is a token bucket refilled continuously at tokensPerMinute.
// It starts full and never holds more than one minute of quota.
//
//nolint:govet
type Bucket struct {
	mu         sync.Mutex
	capacity   int
	available  float64
	lastRefill time.Time
	now        func() time.Time

	waits int64
}

// Stats is a snapshot of a bucket.
type Stats struct {
	Available int   `json:"available"`
	Capacity  int   `json:"capacity"`
	Waits     int64 `json:"waits"`
}

// NewBucket creates a bucket for tokensPerMinute. It returns nil for a
// non-positive quota, which Middleware treats as unlimited.
func NewBucket(tokensPerMinute int) *Bucket {
	if tokensPerMinute <= 0 {
		return nil
	}
	b := &Bucket{
		capacity:  tokensPerMinute,
		available: float64(tokensPerMinute),
		now:       time.Now,
	}
	b.lastRefill = b.now()
	return b
}

// refill must be called with mu held.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.available += elapsed.Minutes() * float64(b.capacity)
	if b.available > float64(b.capacity) {
		b.available = float64(b.capacity)
	}
	b.lastRefill = now
}

// TryAcquire takes n tokens if they are available. Requests larger than the
// capacity are clamped so that they wait for a full bucket instead of forever.
func (b *Bucket) TryAcquire(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.capacity {
		n = b.capacity
	}
	b.refill()
	if b.available < float64(n) {
		return false
	}
	b.available -= float64(n)
	return true
}

// Acquire blocks until n tokens are taken or ctx is done.
func (b *Bucket) Acquire(ctx context.Context, n int) error {
	first := true
	for {
		if b.TryAcquire(n) {
			return nil
		}
		if first {
			b.mu.Lock()
			b.waits++
			have := int(b.available)
			b.mu.Unlock()
			logx.Debug(ctx, "ratelimit", "token quota exhausted, waiting (need %d, have %d)", n, have)
			first = false
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Stats returns the current bucket state.
func (b *Bucket) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return Stats{Available: int(b.available), Capacity: b.capacity, Waits: b.waits}
}

// Package retry re-issues oracle requests that failed for transient reasons,
// backing off exponentially between attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"kcexplore/pkg/config"
	"kcexplore/pkg/oracle/llmerrors"
	"kcexplore/pkg/oracle/middleware/circuit"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           // Including the initial attempt
	InitialDelay  time.Duration // Delay before the first retry
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool // Spread delays by up to ±10%
}

// DefaultConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// FromConfig converts the oracle's YAML retry section.
func FromConfig(rc config.RetryConfig) Config {
	return Config{
		MaxAttempts:   rc.MaxAttempts,
		InitialDelay:  rc.InitialDelay,
		MaxDelay:      rc.MaxDelay,
		BackoffFactor: rc.BackoffFactor,
		Jitter:        rc.Jitter,
	}
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default classifier. It is a blocklist: anything not known
// to be permanent is retried.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// The caller gave up. DeadlineExceeded is not listed because a per-request
	// timeout fires while the parent context is still live.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var circuitErr *circuit.Error
	if errors.As(err, &circuitErr) {
		return false
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, permanent := range []string{"401", "403", "400", "404", "unauthorized", "invalid api key"} {
		if strings.Contains(msg, permanent) {
			return false
		}
	}
	return true
}

// Policy encapsulates retry configuration and logic.
//
//nolint:govet // Simple struct, logical grouping preferred
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
func NewPolicy(cfg Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Policy{
		Config:     cfg,
		Classifier: classifier,
	}
}

// CalculateDelay computes the delay before the given attempt (1-based).
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if p.Config.MaxDelay > 0 && delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		spread := (rand.Float64()*2 - 1) * 0.1 //nolint:gosec // jitter needs no crypto
		delay += time.Duration(float64(delay) * spread)
	}

	return delay
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

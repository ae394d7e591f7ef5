// Package circuit stops calling the oracle after a run of consecutive failures
// and lets a trial request through once a cool-down has passed.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"kcexplore/pkg/logx"
)

// State represents the current state of a circuit breaker.
type State int

// Breaker states.
const (
	Closed   State = iota // Requests flow
	Open                  // Requests are rejected
	HalfOpen              // Probing whether the oracle recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config defines configuration for circuit breaker behavior.
type Config struct {
	FailureThreshold int           // Consecutive failures that open the circuit
	SuccessThreshold int           // Half-open successes that close it again
	CoolDown         time.Duration // Time spent open before probing
}

// DefaultConfig trips after five straight failures.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 1,
	CoolDown:         30 * time.Second,
}

// Error is returned for requests rejected by an open circuit.
type Error struct {
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle circuit breaker is %s", e.State)
}

// Breaker tracks request outcomes. It is safe for concurrent use.
type Breaker struct {
	now          func() time.Time
	logger       *logx.Logger
	openedAt     time.Time
	config       Config
	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{
		config: cfg,
		now:    time.Now,
		logger: logx.NewLogger("circuit"),
	}
}

// Allow reports whether a request may proceed, moving an expired open circuit to half-open.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.config.CoolDown {
			return false
		}
		b.transition(HalfOpen)
	}
	return true
}

// Record records the outcome of a request that Allow admitted.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failureCount = 0
		if b.state == HalfOpen {
			b.successCount++
			if b.successCount >= b.config.SuccessThreshold {
				b.transition(Closed)
			}
		}
		return
	}

	b.failureCount++
	if b.state == HalfOpen || b.failureCount >= b.config.FailureThreshold {
		b.openedAt = b.now()
		b.transition(Open)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Closed)
	b.failureCount = 0
}

func (b *Breaker) transition(to State) {
	if b.state != to {
		b.logger.Info("oracle circuit %s -> %s", b.state, to)
	}
	b.state = to
	b.successCount = 0
}

package alerts

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the notifier while its breaker
// is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	DefaultBreakerThreshold = 3
	DefaultBreakerReset     = 30 * time.Second
)

// BreakerState is the externally visible state of a Breaker.
type BreakerState string

const (
	BreakerClosed BreakerState = "closed"
	BreakerOpen   BreakerState = "open"
)

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int

	// ResetTimeout is how long after the last failure an open breaker lets
	// a call through again.
	ResetTimeout time.Duration

	// Now overrides the clock.
	Now func() time.Time
}

// Breaker fails fast after repeated notifier failures. Once ResetTimeout has
// passed since the last failure the next call is let through; its outcome
// decides whether the breaker stays closed.
type Breaker struct {
	threshold int
	reset     time.Duration
	now       func() time.Time

	mu           sync.Mutex
	failureCount int
	lastFailure  time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold < 1 {
		cfg.Threshold = DefaultBreakerThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultBreakerReset
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{threshold: cfg.Threshold, reset: cfg.ResetTimeout, now: cfg.Now}
}

// Do runs fn unless the breaker is open. Failures caused by ctx being
// cancelled are not counted.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(ctx, err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failureCount < b.threshold {
		return nil
	}
	if b.now().Sub(b.lastFailure) > b.reset {
		b.failureCount = 0
		return nil
	}
	return ErrCircuitOpen
}

func (b *Breaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.failureCount = 0
	case ctx.Err() != nil:
		// The caller gave up; the notifier is not to blame.
	default:
		b.failureCount++
		b.lastFailure = b.now()
	}
}

// State reports whether calls are currently rejected.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failureCount >= b.threshold && b.now().Sub(b.lastFailure) <= b.reset {
		return BreakerOpen
	}
	return BreakerClosed
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

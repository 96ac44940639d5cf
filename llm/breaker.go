// Circuit breaker for provider health tracking.
//
// Information Hiding:
// - Failure counting and state transitions are internal
// - Callers only ask Allow and report outcomes
// - Clock injected so tests control the cooldown
package llm

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	// BreakerClosed allows all calls.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen allows a single probe call.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker tracks consecutive failures for one provider. After the
// failure threshold is reached the breaker opens and calls are rejected for
// the cooldown period; the first call after the cooldown is allowed through
// as a probe, and its outcome decides whether the breaker closes or reopens.
// Thread-safe.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	threshold    int
	cooldown     time.Duration
	blockedUntil time.Time
	now          func() time.Time
}

// NewCircuitBreaker creates a closed breaker with the given failure
// threshold and cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:     BreakerClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Used by tests to control the cooldown.
func (b *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	b.now = now
	return b
}

// Allow reports whether a call may proceed. When the breaker is open and the
// cooldown has elapsed, it transitions to half-open and admits exactly one
// probe; further calls are rejected until the probe's outcome is recorded.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Before(b.blockedUntil) {
			return false
		}
		b.state = BreakerHalfOpen
		return true
	case BreakerHalfOpen:
		// Probe already in flight.
		return false
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failures = 0
}

// RecordFailure counts a failed call. In half-open state any failure reopens
// the breaker immediately; in closed state the breaker opens once the
// threshold is reached.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.open()
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.open()
	}
}

// open transitions to the open state. Caller must hold the lock.
func (b *CircuitBreaker) open() {
	b.state = BreakerOpen
	b.failures = 0
	b.blockedUntil = b.now().Add(b.cooldown)
}

// State returns the current state without mutating it.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

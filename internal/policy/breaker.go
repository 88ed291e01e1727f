package policy

import (
	"sync"
	"time"

	"github.com/sessionbroker/broker/pkg/types"
)

// BreakerState is one of the three sliding-window circuit breaker states
// of spec.md §4.6.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// CircuitBreaker guards backend-restart resilience with a real sliding
// time window rather than a lifetime counter — the teacher's
// DoomLoopDetector already keeps a bounded recent-history slice per key
// and resets cleanly; this reuses that shape but slides failures out of
// the window by elapsed time instead of by a fixed slice length, since a
// lifetime counter that only resets on recovery (the REDESIGN FLAG this
// replaces) lets failures from hours apart count toward the same trip.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg types.CircuitBreakerConfig

	state            BreakerState
	failures         []time.Time // within cfg.WindowMs of now, closed-state only
	openedAt         time.Time
	halfOpenSuccesses int

	now func() time.Time
}

// NewCircuitBreaker creates a breaker starting in the closed state.
func NewCircuitBreaker(cfg types.CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// CanExecute reports whether a call is currently allowed, transitioning
// open to half_open once the recovery timer has elapsed.
func (b *CircuitBreaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= time.Duration(b.cfg.RecoveryTimeMs)*time.Millisecond {
			b.state = StateHalfOpen
			b.halfOpenSuccesses = 0
			return true
		}
		return false
	}
	return false
}

// RecordFailure registers a failed call.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.trip()
	case StateClosed:
		now := b.now()
		window := time.Duration(b.cfg.WindowMs) * time.Millisecond
		b.failures = append(b.failures, now)
		b.failures = slideWindow(b.failures, now, window)
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

// RecordSuccess registers a successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = nil
			b.halfOpenSuccesses = 0
		}
	case StateClosed:
		// steady state; nothing to track
	}
}

func (b *CircuitBreaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = nil
	b.halfOpenSuccesses = 0
}

// GetState returns the current state.
func (b *CircuitBreaker) GetState() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetFailureCount returns the number of failures currently counted within
// the sliding window (closed state only; 0 once tripped).
func (b *CircuitBreaker) GetFailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.failures)
}

// ForceReset returns the breaker to closed, clearing all counters.
func (b *CircuitBreaker) ForceReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = nil
	b.halfOpenSuccesses = 0
}

// slideWindow drops entries older than window relative to now.
func slideWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(times); i++ {
		if times[i].After(cutoff) {
			break
		}
	}
	return times[i:]
}

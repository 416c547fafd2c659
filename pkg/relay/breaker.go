package relay

import (
	"sync"
	"time"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker trips after a run of consecutive dispatch failures and
// blocks traffic until a cool-down elapses, then admits a single trial
// request before deciding whether to close again.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	timeout   time.Duration
	openedAt  time.Time
	open      bool
	probing   bool

	now func() time.Time
}

func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Allow reports whether a dispatch may proceed. While open it returns
// false until the cool-down elapses, then admits exactly one probe.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if b.now().Sub(b.openedAt) < b.timeout {
		return false
	}
	if b.probing {
		return false
	}
	b.probing = true
	return true
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.open = false
	b.probing = false
	b.mu.Unlock()
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.probing {
		// Failed probe reopens the breaker for a full cool-down.
		b.probing = false
		b.openedAt = b.now()
		return
	}

	b.failures++
	if !b.open && b.failures >= b.threshold {
		b.open = true
		b.openedAt = b.now()
	}
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return BreakerClosed
	}
	if b.probing || b.now().Sub(b.openedAt) >= b.timeout {
		return BreakerHalfOpen
	}
	return BreakerOpen
}

func (b *CircuitBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Package circuit provides a small circuit breaker for calls to external
// services, so a dead dependency fails fast instead of eating a full timeout
// on every request.
package circuit

import "sync"

// State is the breaker position.
type State int

const (
	// StateClosed lets calls through.
	StateClosed State = iota
	// StateOpen means the dependency is considered down.
	StateOpen
)

// StateChange reports a transition so callers can log it exactly once.
type StateChange struct {
	Opened bool
	Closed bool
}

// Breaker counts consecutive failures against a threshold. It has two
// states: closed until failureThreshold consecutive failures, open until
// successThreshold consecutive successes. How calls reach the dependency
// while open (probing, fallback) is the caller's business.
type Breaker struct {
	mu sync.Mutex

	name             string
	state            State
	failureThreshold int
	successThreshold int

	// Consecutive counts. A success zeroes failures and vice versa.
	failures  int
	successes int
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many consecutive successes close it again.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// New builds a closed breaker. Defaults: 5 failures to open, 3 successes
// to close.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 3,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Name identifies the breaker in logs and metrics.
func (b *Breaker) Name() string {
	return b.name
}

// IsOpen reports whether the circuit has tripped.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordFailure notes a failed call. useFallback is true whenever the
// circuit is open afterwards; change.Opened is true only on the call that
// tripped it.
func (b *Breaker) RecordFailure() (useFallback bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.successes = 0

	if b.state == StateClosed && b.failures >= b.failureThreshold {
		b.state = StateOpen
		change.Opened = true
	}
	return b.state == StateOpen, change
}

// RecordSuccess notes a successful call. usePrimary is true whenever the
// circuit is closed afterwards; change.Closed is true only on the call that
// recovered it.
func (b *Breaker) RecordSuccess() (usePrimary bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++
	b.failures = 0

	if b.state == StateOpen && b.successes >= b.successThreshold {
		b.state = StateClosed
		b.successes = 0
		change.Closed = true
	}
	return b.state == StateClosed, change
}

// Reset forces the breaker closed and clears the counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

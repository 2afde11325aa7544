// Package breaker implements the circuit breaker guarding the downstream
// executor.
//
// The breaker has three states. CLOSED admits everything and counts
// consecutive failures; reaching the threshold opens the circuit. OPEN
// rejects everything until the open duration elapses, then admits exactly
// one probe (HALF_OPEN). A successful probe closes the circuit; a failed
// probe re-opens it for another full window.
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State is the breaker's position.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

const (
	// DefaultFailureThreshold is the consecutive-failure count that opens
	// the circuit.
	DefaultFailureThreshold = 5
	// DefaultOpenDuration is how long the circuit stays open before a
	// probe is admitted.
	DefaultOpenDuration = 60 * time.Second
)

// Breaker tracks consecutive downstream failures and gates execution.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	openDuration     time.Duration

	state        State
	failures     int       // consecutive failures while CLOSED
	expiry       time.Time // when OPEN ends
	probeInFlight bool     // one probe per OPEN→HALF_OPEN cycle

	now      func() time.Time
	onChange func(from, to State)
	logger   *slog.Logger
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithStateChange registers an observer for state transitions, called
// outside the breaker's lock.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// New creates a breaker. Zero threshold or duration fall back to the
// defaults.
func New(failureThreshold int, openDuration time.Duration, logger *slog.Logger, opts ...Option) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if openDuration <= 0 {
		openDuration = DefaultOpenDuration
	}
	b := &Breaker{
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		state:            Closed,
		now:              time.Now,
		logger:           logger.With("component", "breaker"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether an execution attempt may proceed. While OPEN, the
// first call at or after expiry transitions to HALF_OPEN and is admitted
// as the probe; all other calls are rejected.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	switch b.state {
	case Closed:
		b.mu.Unlock()
		return true

	case Open:
		if b.now().Before(b.expiry) {
			b.mu.Unlock()
			return false
		}
		from := b.state
		b.state = HalfOpen
		b.probeInFlight = true
		b.mu.Unlock()
		b.emit(from, HalfOpen)
		return true

	default: // HalfOpen
		if b.probeInFlight {
			b.mu.Unlock()
			return false
		}
		b.probeInFlight = true
		b.mu.Unlock()
		return true
	}
}

// RecordSuccess notes a successful downstream call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()

	from := b.state
	switch b.state {
	case HalfOpen:
		b.state = Closed
		b.failures = 0
		b.probeInFlight = false
	case Closed:
		b.failures = 0
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.logger.Info("circuit closed after successful probe")
		b.emit(from, to)
	}
}

// RecordFailure notes a failed downstream call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()

	from := b.state
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = Open
			b.expiry = b.now().Add(b.openDuration)
		}
	case HalfOpen:
		// Probe failed: back to OPEN for another full window.
		b.state = Open
		b.expiry = b.now().Add(b.openDuration)
		b.probeInFlight = false
	}
	to := b.state
	failures := b.failures
	expiry := b.expiry
	b.mu.Unlock()

	if from != to {
		b.logger.Warn("circuit opened",
			"consecutive_failures", failures,
			"reopen_at", expiry,
		)
		b.emit(from, to)
	}
}

// State returns the breaker's current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) emit(from, to State) {
	if b.onChange != nil {
		b.onChange(from, to)
	}
}

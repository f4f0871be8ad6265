// Package retry provides the hand-rolled exponential backoff, circuit
// breaker, and cooperative-cancellation primitives shared by the
// BlockArchiver (C2) and the AccountingValidator (C5), grounded on
// stellar-live-source-datalake/go/server/server.go's CircuitBreaker and
// backoff constants.
package retry

import (
	"context"
	"sync"
	"time"
)

// Backoff computes exponential retry delays capped at maxRetries attempts,
// per spec.md §5: "HTTP retry policy is exponential with a cap of 3
// attempts and only on idempotent GETs."
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int
}

// DefaultBackoff matches spec.md §5's retry policy.
func DefaultBackoff() Backoff {
	return Backoff{Initial: 1 * time.Second, Max: 30 * time.Second, MaxRetries: 3}
}

// Delay returns the backoff delay before retry attempt n (1-indexed).
func (b Backoff) Delay(n int) time.Duration {
	d := b.Initial
	for i := 1; i < n; i++ {
		d *= 2
		if d > b.Max {
			return b.Max
		}
	}
	return d
}

// Do calls fn until it succeeds, b.MaxRetries is exhausted, or ctx is
// cancelled, sleeping Delay(n) between attempts. It only retries errors for
// which retriable(err) returns true.
func (b Backoff) Do(ctx context.Context, retriable func(error) bool, fn func() error) error {
	var err error
	for attempt := 1; attempt <= b.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retriable(err) {
			return err
		}
		if attempt == b.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Delay(attempt)):
		}
	}
	return err
}

// circuitState is the circuit breaker's current disposition.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// CircuitBreaker implements the classic closed/open/half-open pattern,
// grounded on stellar-live-source-datalake/go/server/server.go's
// CircuitBreaker.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	resetTimeout     time.Duration
	failureCount     int
	lastFailureTime  time.Time
	state            circuitState
}

// NewCircuitBreaker creates a breaker that opens after failureThreshold
// consecutive failures and allows one trial call after resetTimeout.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		state:            circuitClosed,
	}
}

// Allow reports whether a call should be attempted right now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if time.Since(cb.lastFailureTime) > cb.resetTimeout {
			cb.state = circuitHalfOpen
			return true
		}
		return false
	default: // half-open: the one trial was already allowed on the transition above
		return false
	}
}

// RecordSuccess closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = circuitClosed
	cb.failureCount = 0
}

// RecordFailure counts a failure and opens the breaker past the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailureTime = time.Now()
	if cb.state == circuitHalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.state = circuitOpen
	}
}

// SignalFlag implements the one-flag-per-component cooperative shutdown
// described in spec.md §9: a first signal requests a drain, a second
// signal escalates to a hard exit. Components check Stopped() between
// iterations and at blocking-call suspension points.
type SignalFlag struct {
	mu      sync.Mutex
	stopped bool
	onHard  func()
}

// NewSignalFlag creates a flag whose second Stop() call invokes onHardExit
// (typically os.Exit(1)) instead of returning.
func NewSignalFlag(onHardExit func()) *SignalFlag {
	return &SignalFlag{onHard: onHardExit}
}

// Stop requests a cooperative drain on the first call; a second call
// escalates to the hard-exit callback, per spec.md §6's exit-code table.
func (f *SignalFlag) Stop() {
	f.mu.Lock()
	alreadyStopped := f.stopped
	f.stopped = true
	f.mu.Unlock()

	if alreadyStopped && f.onHard != nil {
		f.onHard()
	}
}

// Stopped reports whether a drain has been requested.
func (f *SignalFlag) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

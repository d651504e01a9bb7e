// Package resilience holds the pipeline's error taxonomy and the circuit
// breaker that guards calls to the external reasoning service.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the breaker position.
type CircuitState int

// Circuit states.
const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen rejects a call without running it. It is also returned
// while a half-open probe is already in flight.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive tripping failures open the circuit.
	FailureThreshold int
	// Cooldown before a single probe call is let through.
	ResetTimeout time.Duration
	// ShouldTrip selects the errors that count. Nil counts every error.
	ShouldTrip func(err error) bool
	// OnStateChange runs under the breaker lock; keep it cheap.
	OnStateChange func(from, to CircuitState)
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultCircuitBreakerConfig returns the defaults used when config is empty.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
}

// CircuitSnapshot is a point-in-time view of a breaker.
type CircuitSnapshot struct {
	State               CircuitState
	ConsecutiveFailures int
	OpenedAt            time.Time
}

// CircuitBreaker stops calling a failing dependency for a cooldown, then
// lets exactly one probe through. It never retries.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker fills zero config values from the defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Call runs fn through cb and returns its result, or ErrCircuitOpen
// without running fn.
func Call[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	probe, err := cb.acquire()
	if err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	cb.release(probe, err)
	return val, err
}

// State reports the current position. An open circuit past its cooldown
// reports half-open.
func (cb *CircuitBreaker) State() CircuitState {
	return cb.Snapshot().State
}

// Snapshot returns the breaker's counters.
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := CircuitSnapshot{State: cb.state, ConsecutiveFailures: cb.failures, OpenedAt: cb.openedAt}
	if cb.state == CircuitOpen && cb.cooledDown() {
		s.State = CircuitHalfOpen
	}
	return s
}

func (cb *CircuitBreaker) cooledDown() bool {
	return cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

// acquire admits a call. The returned flag marks the half-open probe.
func (cb *CircuitBreaker) acquire() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return false, nil
	case CircuitOpen:
		if !cb.cooledDown() {
			return false, ErrCircuitOpen
		}
		cb.transition(CircuitHalfOpen)
	}
	if cb.probing {
		return false, ErrCircuitOpen
	}
	cb.probing = true
	return true, nil
}

func (cb *CircuitBreaker) release(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	tripped := err != nil && cb.cfg.ShouldTrip(err)

	switch {
	case !tripped && probe:
		cb.failures = 0
		cb.transition(CircuitClosed)
	case !tripped:
		if cb.state == CircuitClosed {
			cb.failures = 0
		}
	case probe:
		cb.failures++
		cb.open()
	default:
		cb.failures++
		if cb.state == CircuitClosed && cb.failures >= cb.cfg.FailureThreshold {
			cb.open()
		}
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.cfg.Now()
	cb.transition(CircuitOpen)
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// Package resilience provides a circuit breaker for guarding calls to
// the external text-generation backend.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State of the circuit breaker.
type State int32

const (
	// StateClosed - requests flow normally.
	StateClosed State = iota
	// StateOpen - requests are rejected immediately.
	StateOpen
	// StateHalfOpen - a limited number of probe requests test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned while the breaker rejects requests. The
// caller sees it as a capability failure.
var ErrBreakerOpen = errors.New("generation backend circuit breaker is open")

// Config holds circuit breaker settings.
type Config struct {
	// Name identifies this breaker in logs.
	Name string

	// FailureThreshold is the number of consecutive failures that trips
	// the breaker open.
	FailureThreshold int

	// CooldownPeriod is how long the breaker stays open before allowing
	// a probe request.
	CooldownPeriod time.Duration

	// HalfOpenProbes is how many consecutive successful probes close
	// the breaker again.
	HalfOpenProbes int
}

// DefaultConfig returns sensible defaults for an external API.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		CooldownPeriod:   30 * time.Second,
		HalfOpenProbes:   2,
	}
}

// CircuitBreaker guards an external dependency. Safe for concurrent use.
type CircuitBreaker struct {
	config Config

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	probeSuccesses      int
	inFlightProbes      int
	openedAt            time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(config Config) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig(config.Name).FailureThreshold
	}
	if config.CooldownPeriod <= 0 {
		config.CooldownPeriod = DefaultConfig(config.Name).CooldownPeriod
	}
	if config.HalfOpenProbes <= 0 {
		config.HalfOpenProbes = DefaultConfig(config.Name).HalfOpenProbes
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Execute runs fn through the breaker, recording its outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

// State returns the current state, accounting for cooldown expiry.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.config.CooldownPeriod {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.config.CooldownPeriod {
			return ErrBreakerOpen
		}
		cb.state = StateHalfOpen
		cb.probeSuccesses = 0
		cb.inFlightProbes = 1
	case StateHalfOpen:
		// At most HalfOpenProbes requests may be probing the backend at
		// once; a concurrent burst against a recovering backend defeats
		// the point of half-open.
		if cb.inFlightProbes >= cb.config.HalfOpenProbes {
			return ErrBreakerOpen
		}
		cb.inFlightProbes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.inFlightProbes > 0 {
		cb.inFlightProbes--
	}

	if err != nil {
		cb.consecutiveFailures++
		cb.probeSuccesses = 0
		if cb.state == StateHalfOpen || cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = time.Now()
			cb.inFlightProbes = 0
		}
		return
	}

	cb.consecutiveFailures = 0
	switch cb.state {
	case StateHalfOpen:
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.config.HalfOpenProbes {
			cb.state = StateClosed
			cb.inFlightProbes = 0
		}
	case StateOpen:
		cb.state = StateClosed
	}
}

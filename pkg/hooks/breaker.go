package hooks

import (
	"sync"
	"time"
)

// Circuit breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// BreakerConfig holds the parameters of a host's circuit breaker.
type BreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxAttempts int
}

// DefaultBreakerConfig opens after five consecutive failures and lets one
// request through after thirty seconds.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold:    5,
	ResetTimeout:        30 * time.Second,
	HalfOpenMaxAttempts: 1,
}

// CircuitBreaker tracks consecutive failures of one host.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           string
	failures        int
	successes       int
	lastFailureTime time.Time
	config          BreakerConfig
	now             func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.HalfOpenMaxAttempts <= 0 {
		cfg.HalfOpenMaxAttempts = 1
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	return &CircuitBreaker{
		state:  StateClosed,
		config: cfg,
		now:    time.Now,
	}
}

// AllowRequest reports whether a call may be attempted. An open breaker
// moves to half-open once the reset timeout has passed.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailureTime) <= cb.config.ResetTimeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.successes = 0
	}
	return true
}

// RecordSuccess records a call that reached the host and did not fail.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes < cb.config.HalfOpenMaxAttempts {
			return
		}
	}
	cb.state = StateClosed
}

// RecordFailure records a transport error or server error.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = cb.now()
	if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.state = StateOpen
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

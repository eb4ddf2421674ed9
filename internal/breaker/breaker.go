// Package breaker guards a single flaky dependency with a closed/open/half-open state machine.
package breaker

import (
	"sync"
	"time"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Clock lets tests control time.
type Clock func() time.Time

type Config struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// Snapshot is a consistent copy of the breaker's state.
type Snapshot struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureTime     time.Time `json:"last_failure_time"`
}

// CircuitBreaker is safe for concurrent use. Transitions are serialized by a mutex,
// so concurrent successes and failures never lose counter updates.
type CircuitBreaker struct {
	name      string
	threshold int
	recovery  time.Duration
	now       Clock

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// New builds a closed breaker. A threshold below 1 is treated as 1.
func New(cfg Config, clock Clock) *CircuitBreaker {
	if clock == nil {
		clock = time.Now
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	return &CircuitBreaker{
		name:      cfg.Name,
		threshold: cfg.FailureThreshold,
		recovery:  cfg.RecoveryTimeout,
		now:       clock,
		state:     StateClosed,
	}
}

func (b *CircuitBreaker) Name() string { return b.name }

// AllowRequest reports whether the guarded dependency may be called. An open breaker
// whose recovery timeout has elapsed moves to half-open and allows the call.
func (b *CircuitBreaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	default:
		if b.now().Sub(b.lastFailure) >= b.recovery {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
}

// RecordSuccess resets the failure count and closes the breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = StateClosed
}

// RecordFailure counts a failure. A closed breaker opens at the threshold;
// a half-open or open breaker reopens immediately.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	if b.state != StateClosed || b.failures >= b.threshold {
		b.state = StateOpen
	}
}

// State returns the current state without triggering the lazy half-open transition.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:               b.state,
		ConsecutiveFailures: b.failures,
		LastFailureTime:     b.lastFailure,
	}
}

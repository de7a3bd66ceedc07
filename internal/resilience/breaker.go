// Package resilience wraps remote calls with retry/backoff and per-endpoint
// circuit breakers.
package resilience

import (
	"sync"
	"time"

	"solana-trade-ledger/internal/observability"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// MaxFailures consecutive counted failures open the circuit.
	MaxFailures int
	// Cooldown is how long the circuit stays open before a trial request.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 5,
		Cooldown:    60 * time.Second,
	}
}

// Snapshot is a point-in-time copy of breaker state.
type Snapshot struct {
	State           State
	FailureCount    int
	LastFailureTime time.Time
	NextAttemptTime time.Time
}

// Breaker is a per-endpoint circuit breaker. Safe for concurrent use.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
	nextAttemptTime time.Time
	trialInFlight   bool
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithClock injects the time source.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) {
		b.now = now
	}
}

// NewBreaker creates a closed breaker for the named endpoint.
func NewBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultBreakerConfig().MaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	b := &Breaker{
		name: name,
		cfg:  cfg,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	observability.SetCircuitState(name, int(StateClosed))
	return b
}

// Name returns the endpoint name.
func (b *Breaker) Name() string {
	return b.name
}

// Allow admits a request or returns a *CircuitOpenError.
// After the cooldown exactly one trial request is admitted in HALF_OPEN.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateOpen:
		if !now.After(b.nextAttemptTime) {
			return &CircuitOpenError{Endpoint: b.name, Remaining: b.nextAttemptTime.Sub(now)}
		}
		b.setState(StateHalfOpen)
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return &CircuitOpenError{Endpoint: b.name}
		}
		b.trialInFlight = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.trialInFlight = false
	b.setState(StateClosed)
}

// RecordFailure counts a failure, opening the circuit at the threshold or
// immediately when the HALF_OPEN trial failed.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.failureCount++
	b.lastFailureTime = now
	b.trialInFlight = false

	if b.state == StateHalfOpen || (b.state == StateClosed && b.failureCount >= b.cfg.MaxFailures) {
		b.nextAttemptTime = now.Add(b.cfg.Cooldown)
		b.setState(StateOpen)
		observability.RecordCircuitTrip(b.name)
	}
}

// Release ends an admitted request without a verdict. A HALF_OPEN breaker
// becomes ready for another trial.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
}

// State returns the current state without transitioning.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:           b.state,
		FailureCount:    b.failureCount,
		LastFailureTime: b.lastFailureTime,
		NextAttemptTime: b.nextAttemptTime,
	}
}

// setState must be called with mu held.
func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.state = s
	observability.SetCircuitState(b.name, int(s))
}

package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"solana-trade-ledger/internal/observability"
)

// Config configures retry behaviour.
type Config struct {
	MaxAttempts int
	// NetworkBaseDelay is the backoff base for network and timeout errors.
	NetworkBaseDelay time.Duration
	// BaseDelay is the backoff base for every other retryable error.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	MaxJitter time.Duration
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      4,
		NetworkBaseDelay: 3 * time.Second,
		BaseDelay:        1 * time.Second,
		MaxDelay:         30 * time.Second,
		MaxJitter:        1 * time.Second,
	}
}

// Executor runs operations through a breaker with classified retries.
type Executor struct {
	cfg     Config
	breaker *Breaker
	log     zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func(max time.Duration) time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Executor) {
		e.log = log
	}
}

// WithSleep replaces the context-aware sleep, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

// WithJitter replaces the jitter source.
func WithJitter(jitter func(max time.Duration) time.Duration) Option {
	return func(e *Executor) {
		e.jitter = jitter
	}
}

// NewExecutor creates an executor guarded by breaker.
func NewExecutor(breaker *Breaker, cfg Config, opts ...Option) *Executor {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.NetworkBaseDelay <= 0 {
		cfg.NetworkBaseDelay = def.NetworkBaseDelay
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if breaker == nil {
		breaker = NewBreaker("default", DefaultBreakerConfig())
	}

	e := &Executor{
		cfg:     cfg,
		breaker: breaker,
		log:     zerolog.Nop(),
		sleep:   Sleep,
		jitter:  randomJitter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Breaker returns the breaker guarding this executor.
func (e *Executor) Breaker() *Breaker {
	return e.breaker
}

// Do runs op with retries. The breaker records a single outcome per call.
// Context cancellation is returned as-is and never counted.
func (e *Executor) Do(ctx context.Context, label string, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.breaker.Allow(); err != nil {
		return err
	}

	var (
		lastErr  error
		class    Class
		attempts int
	)

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		attempts = attempt

		err := op(ctx)
		if err == nil {
			e.breaker.RecordSuccess()
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.breaker.Release()
			return ctxErr
		}

		lastErr = err
		class = Classify(err)
		if !class.Retryable() || attempt == e.cfg.MaxAttempts {
			break
		}

		delay := e.Backoff(class, attempt)
		observability.RecordRetry(label, class.String())
		e.log.Warn().
			Err(err).
			Str("label", label).
			Str("class", class.String()).
			Int("attempt", attempt).
			Int("max_attempts", e.cfg.MaxAttempts).
			Dur("delay", delay).
			Msg("retrying remote call")

		if err := e.sleep(ctx, delay); err != nil {
			e.breaker.Release()
			return err
		}
	}

	if class.CountsAsFailure() {
		e.breaker.RecordFailure()
	} else {
		e.breaker.Release()
	}
	observability.RecordCallFailure(label, class.String())

	return &CallError{Label: label, Attempts: attempts, Class: class, Err: lastErr}
}

// Backoff returns min(base*2^(attempt-1), MaxDelay) plus jitter.
func (e *Executor) Backoff(class Class, attempt int) time.Duration {
	base := e.cfg.BaseDelay
	if class == ClassNetwork || class == ClassTimeout {
		base = e.cfg.NetworkBaseDelay
	}

	delay := e.cfg.MaxDelay
	if attempt-1 < 32 {
		if d := base << uint(attempt-1); d > 0 && d < e.cfg.MaxDelay {
			delay = d
		}
	}
	if e.cfg.MaxJitter > 0 {
		delay += e.jitter(e.cfg.MaxJitter)
	}
	return delay
}

// Call is the value-returning form of Executor.Do.
func Call[T any](ctx context.Context, e *Executor, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, label, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

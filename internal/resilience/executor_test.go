package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-ledger/internal/solana"
)

// recordingSleep records requested delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (s *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestExecutor(b *Breaker, sleep *recordingSleep) *Executor {
	return NewExecutor(b, DefaultConfig(),
		WithSleep(sleep.Sleep),
		WithJitter(func(time.Duration) time.Duration { return 0 }),
	)
}

func TestExecutor_SucceedsAfterRetries(t *testing.T) {
	sleep := &recordingSleep{}
	exec := newTestExecutor(NewBreaker("rpc", DefaultBreakerConfig()), sleep)

	calls := 0
	err := exec.Do(context.Background(), "getTransaction", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &solana.HTTPStatusError{StatusCode: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, sleep.delays)
	assert.Equal(t, StateClosed, exec.Breaker().State())
}

func TestExecutor_ExhaustsFourAttempts(t *testing.T) {
	sleep := &recordingSleep{}
	b := NewBreaker("rpc", DefaultBreakerConfig())
	exec := newTestExecutor(b, sleep)

	calls := 0
	cause := &solana.HTTPStatusError{StatusCode: 429}
	err := exec.Do(context.Background(), "getSignaturesForAddress", func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Len(t, sleep.delays, 3)

	var callErr *CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, 4, callErr.Attempts)
	assert.Equal(t, ClassRateLimit, callErr.Class)
	assert.Equal(t, "getSignaturesForAddress", callErr.Label)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsTransient(err))

	// One logical failure recorded.
	assert.Equal(t, 1, b.Snapshot().FailureCount)
}

func TestExecutor_NetworkBackoffUsesLargerBase(t *testing.T) {
	sleep := &recordingSleep{}
	exec := newTestExecutor(NewBreaker("rpc", DefaultBreakerConfig()), sleep)

	_ = exec.Do(context.Background(), "op", func(ctx context.Context) error {
		return &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
	})

	assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second}, sleep.delays)
}

func TestExecutor_BackoffCapped(t *testing.T) {
	exec := NewExecutor(nil, DefaultConfig(), WithJitter(func(max time.Duration) time.Duration {
		assert.Equal(t, time.Second, max)
		return 500 * time.Millisecond
	}))

	assert.Equal(t, 3500*time.Millisecond, exec.Backoff(ClassNetwork, 1))
	assert.Equal(t, 30*time.Second+500*time.Millisecond, exec.Backoff(ClassNetwork, 5))
	assert.Equal(t, 30*time.Second+500*time.Millisecond, exec.Backoff(ClassServer, 40))
}

func TestExecutor_PermanentFailsImmediately(t *testing.T) {
	sleep := &recordingSleep{}
	b := NewBreaker("rpc", DefaultBreakerConfig())
	exec := newTestExecutor(b, sleep)

	calls := 0
	err := exec.Do(context.Background(), "getTransaction", func(ctx context.Context) error {
		calls++
		return &solana.RPCError{Code: solana.CodeInternalError, Message: "Internal error"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleep.delays)
	assert.Equal(t, ClassPermanent, ClassOf(err))
	assert.True(t, solana.IsRPCCode(err, solana.CodeInternalError))
	assert.Equal(t, 0, b.Snapshot().FailureCount, "permanent errors never count")
}

func TestExecutor_OpensBreakerAndRejects(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("rpc", BreakerConfig{MaxFailures: 5, Cooldown: time.Minute}, WithClock(clock.Now))
	exec := newTestExecutor(b, &recordingSleep{})

	failing := func(ctx context.Context) error { return &solana.HTTPStatusError{StatusCode: 502} }
	for i := 0; i < 5; i++ {
		require.Error(t, exec.Do(context.Background(), "op", failing))
	}
	require.Equal(t, StateOpen, b.State())

	calls := 0
	err := exec.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsCircuitOpen(err))
	assert.Zero(t, calls, "no network attempt while open")

	clock.Advance(time.Minute + time.Second)
	require.NoError(t, exec.Do(context.Background(), "op", func(ctx context.Context) error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestExecutor_CancellationNotRetriedOrCounted(t *testing.T) {
	b := NewBreaker("rpc", DefaultBreakerConfig())
	exec := NewExecutor(b, DefaultConfig(), WithJitter(func(time.Duration) time.Duration { return 0 }))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := exec.Do(ctx, "op", func(ctx context.Context) error {
		calls++
		cancel()
		return fmt.Errorf("request: %w", context.Canceled)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.Snapshot().FailureCount)

	err = exec.Do(ctx, "op", func(ctx context.Context) error {
		t.Fatal("must not run with a cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutor_CancelledDuringBackoff(t *testing.T) {
	b := NewBreaker("rpc", DefaultBreakerConfig())
	exec := NewExecutor(b, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := exec.Do(ctx, "op", func(ctx context.Context) error {
		return &solana.HTTPStatusError{StatusCode: 500}
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, b.Snapshot().FailureCount)
}

func TestCall_ReturnsValue(t *testing.T) {
	exec := newTestExecutor(NewBreaker("token", DefaultBreakerConfig()), &recordingSleep{})

	attempts := 0
	v, err := Call(context.Background(), exec, "lookup", func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", &solana.RPCError{Code: solana.CodeNodeUnhealthy, Message: "Node is behind"}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, attempts)
}

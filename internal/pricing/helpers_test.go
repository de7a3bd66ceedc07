package pricing

import (
	"context"
	"time"

	"solana-trade-ledger/internal/cache"
	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/resilience"
)

// newTestExecutor retries without sleeping.
func newTestExecutor(name string) *resilience.Executor {
	return resilience.NewExecutor(
		resilience.NewBreaker(name, resilience.DefaultBreakerConfig()),
		resilience.DefaultConfig(),
		resilience.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		resilience.WithJitter(func(time.Duration) time.Duration { return 0 }),
	)
}

func newCaches() (*cache.MemoryStore, *cache.Typed[domain.PriceQuote], *cache.Typed[domain.TokenInfo], *cache.Typed[[]TokenListing]) {
	store := cache.NewMemoryStore()
	return store,
		cache.NewTyped[domain.PriceQuote](store, cache.NativePrice),
		cache.NewTyped[domain.TokenInfo](store, cache.TokenInfo),
		cache.NewTyped[[]TokenListing](store, cache.TokenList)
}

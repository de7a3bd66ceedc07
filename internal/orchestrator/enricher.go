package orchestrator

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"solana-trade-ledger/internal/domain"
)

// TokenInfoResolver resolves display metadata for a mint. It never fails.
type TokenInfoResolver interface {
	Resolve(ctx context.Context, mint string) domain.TokenInfo
}

// PriceResolver returns the native asset USD price for the day of ts.
type PriceResolver interface {
	PriceAt(ctx context.Context, ts int64) domain.PriceQuote
}

// Enricher attaches token metadata and USD value to classified trades.
type Enricher struct {
	tokens TokenInfoResolver
	prices PriceResolver
}

// NewEnricher creates an Enricher.
func NewEnricher(tokens TokenInfoResolver, prices PriceResolver) *Enricher {
	return &Enricher{tokens: tokens, prices: prices}
}

// Enrich fills token metadata for the primary and every secondary change,
// resolving distinct mints concurrently, then sets
// USDValue = |NativeAmount| * price of the trade's day.
func (e *Enricher) Enrich(ctx context.Context, t *domain.Trade) error {
	mints := []string{t.TokenMint}
	seen := map[string]struct{}{t.TokenMint: {}}
	for _, ch := range t.AllTokenChanges {
		if _, ok := seen[ch.Mint]; !ok {
			seen[ch.Mint] = struct{}{}
			mints = append(mints, ch.Mint)
		}
	}

	var (
		mu    sync.Mutex
		infos = make(map[string]domain.TokenInfo, len(mints))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, mint := range mints {
		g.Go(func() error {
			info := e.tokens.Resolve(gctx, mint)
			mu.Lock()
			infos[mint] = info
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	primary := infos[t.TokenMint]
	t.TokenSymbol = primary.Symbol
	t.TokenName = primary.Name
	t.TokenLogo = primary.LogoURI
	for i := range t.AllTokenChanges {
		t.AllTokenChanges[i].Symbol = infos[t.AllTokenChanges[i].Mint].Symbol
	}

	quote := e.prices.PriceAt(ctx, t.Timestamp)
	t.USDValue = t.NativeAmount.Abs().Mul(decimal.NewFromFloat(quote.PriceUSD))
	return ctx.Err()
}

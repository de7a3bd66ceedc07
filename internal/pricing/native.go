package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"solana-trade-ledger/internal/cache"
	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/observability"
	"solana-trade-ledger/internal/resilience"
)

const priceKindNative = "native"

// NativePriceConfig configures the price-history endpoint.
type NativePriceConfig struct {
	BaseURL         string  `mapstructure:"base_url"`
	CoinID          string  `mapstructure:"coin_id"`
	VsCurrency      string  `mapstructure:"vs_currency"`
	DefaultPriceUSD float64 `mapstructure:"default_price_usd"`
}

// DefaultNativePriceConfig returns the CoinGecko market chart settings.
func DefaultNativePriceConfig() NativePriceConfig {
	return NativePriceConfig{
		BaseURL:         "https://api.coingecko.com/api/v3",
		CoinID:          "solana",
		VsCurrency:      "usd",
		DefaultPriceUSD: 150,
	}
}

// NativePriceResolver returns the native asset USD price for a calendar day.
type NativePriceResolver struct {
	cfg    NativePriceConfig
	exec   *resilience.Executor
	quotes *cache.Typed[domain.PriceQuote]
	opts   options
}

// NewNativePriceResolver creates a resolver. exec should be guarded by the
// price endpoint breaker.
func NewNativePriceResolver(cfg NativePriceConfig, exec *resilience.Executor, quotes *cache.Typed[domain.PriceQuote], opts ...Option) *NativePriceResolver {
	def := DefaultNativePriceConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.CoinID == "" {
		cfg.CoinID = def.CoinID
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = def.VsCurrency
	}
	if cfg.DefaultPriceUSD <= 0 {
		cfg.DefaultPriceUSD = def.DefaultPriceUSD
	}
	return &NativePriceResolver{
		cfg:    cfg,
		exec:   exec,
		quotes: quotes,
		opts:   newOptions(opts),
	}
}

// marketChart is the price history response: [[unix ms, price], ...].
type marketChart struct {
	Prices [][]float64 `json:"prices"`
}

// PriceAt returns the quote for the UTC day containing ts (unix seconds).
// Remote failures resolve to the configured default, which is cached like a
// real quote. Cancellation returns the default without caching it.
func (r *NativePriceResolver) PriceAt(ctx context.Context, ts int64) domain.PriceQuote {
	bucket := domain.DateBucket(ts)
	log := r.opts.log.With().Str("date", bucket).Logger()

	if q, ok, err := r.quotes.Get(ctx, bucket); err != nil {
		log.Warn().Err(err).Msg("price cache read failed")
	} else if ok {
		observability.RecordPriceLookup(priceKindNative, "cache")
		return q
	}

	quote := domain.PriceQuote{DateBucket: bucket, PriceUSD: r.cfg.DefaultPriceUSD}
	price, err := r.fetch(ctx, ts)
	switch {
	case err == nil:
		quote.PriceUSD = price
		observability.RecordPriceLookup(priceKindNative, "remote")
	case ctx.Err() != nil:
		return quote
	default:
		log.Warn().Err(err).Float64("default", r.cfg.DefaultPriceUSD).Msg("price history unavailable, using default")
		observability.RecordPriceFallback(priceKindNative)
	}

	if err := r.quotes.Set(ctx, bucket, quote); err != nil {
		log.Warn().Err(err).Msg("price cache write failed")
	}
	return quote
}

func (r *NativePriceResolver) fetch(ctx context.Context, ts int64) (float64, error) {
	days := DaysBack(r.opts.now(), ts)
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?%s", r.cfg.BaseURL, url.PathEscape(r.cfg.CoinID), url.Values{
		"vs_currency": {r.cfg.VsCurrency},
		"days":        {strconv.Itoa(days)},
	}.Encode())

	chart, err := resilience.Call(ctx, r.exec, "market_chart", func(ctx context.Context) (*marketChart, error) {
		var out marketChart
		if err := getJSON(ctx, r.opts.client, endpoint, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return 0, err
	}

	price, ok := ClosestPrice(chart.Prices, ts*1000)
	if !ok {
		return 0, errors.New("price history is empty")
	}
	return price, nil
}

// DaysBack returns how many days of history reach back to ts from now:
// floor((now - ts) / 24h) + 1, never less than 1.
func DaysBack(now time.Time, ts int64) int {
	elapsed := now.Unix() - ts
	if elapsed < 0 {
		return 1
	}
	return int(elapsed/int64(24*time.Hour/time.Second)) + 1
}

// ClosestPrice returns the price of the point nearest to targetMs. The first
// point wins ties. Malformed points are skipped.
func ClosestPrice(points [][]float64, targetMs int64) (float64, bool) {
	var (
		best     float64
		bestDist = math.Inf(1)
		found    bool
	)
	for _, p := range points {
		if len(p) < 2 {
			continue
		}
		dist := math.Abs(p[0] - float64(targetMs))
		if dist < bestDist {
			best, bestDist, found = p[1], dist, true
		}
	}
	return best, found
}


package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-trade-ledger/internal/cache"
	"solana-trade-ledger/internal/classify"
	"solana-trade-ledger/internal/config"
	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/ingestion"
	"solana-trade-ledger/internal/observability"
	"solana-trade-ledger/internal/orchestrator"
	"solana-trade-ledger/internal/pricing"
	"solana-trade-ledger/internal/resilience"
	"solana-trade-ledger/internal/solana"
	"solana-trade-ledger/internal/storage"
	chstore "solana-trade-ledger/internal/storage/clickhouse"
	"solana-trade-ledger/internal/storage/memory"
	pgstore "solana-trade-ledger/internal/storage/postgres"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	UseMemory bool

	closers []func()
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger, useMemory bool) *App {
	return &App{Config: cfg, Logger: logger, UseMemory: useMemory}
}

// Close releases every resource opened by the App, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) newRPC() *solana.HTTPClient {
	return solana.NewHTTPClient(a.Config.RPC.HTTPEndpoint,
		solana.WithTimeout(a.Config.RPC.Timeout),
		solana.WithCommitment(a.Config.RPC.Commitment),
	)
}

// newExecutor builds an executor guarded by its own named breaker.
func (a *App) newExecutor(name string, breaker config.BreakerConfig) *resilience.Executor {
	return resilience.NewExecutor(
		resilience.NewBreaker(name, breaker.Breaker()),
		a.Config.ExecutorConfig(),
		resilience.WithLogger(a.Logger),
	)
}

func (a *App) newClassifier() *classify.Classifier {
	return classify.New(
		classify.WithDust(decimal.NewFromFloat(a.Config.Classifier.Dust)),
		classify.WithMinNativeChange(decimal.NewFromFloat(a.Config.Classifier.MinNativeChange)),
	)
}

// openCache connects the configured cache backend.
func (a *App) openCache(ctx context.Context) (cache.Store, error) {
	if a.UseMemory || a.Config.Cache.Backend != config.CacheRedis {
		store := cache.NewMemoryStore()
		a.onClose(func() { _ = store.Close() })
		return store, nil
	}

	store, err := cache.NewRedisStore(ctx, a.Config.Cache.Redis)
	if err != nil {
		return nil, fmt.Errorf("open redis cache: %w", err)
	}
	a.onClose(func() { _ = store.Close() })
	return store, nil
}

// openStores returns the watermark and trade stores. Postgres is required
// unless --use-memory is set.
func (a *App) openStores(ctx context.Context) (storage.WatermarkStore, storage.TradeStore, error) {
	if a.UseMemory {
		a.Logger.Warn().Msg("using in-memory storage; results are lost on exit")
		return memory.NewWatermarkStore(), memory.NewTradeStore(), nil
	}

	dsn := a.Config.Storage.PostgresDSN
	if dsn == "" {
		return nil, nil, errors.New("storage.postgres_dsn is required (use --use-memory for in-memory storage)")
	}
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.onClose(pool.Close)

	var trades storage.TradeStore = pgstore.NewTradeStore(pool)
	if a.Config.Storage.Trades == config.TradesClickHouse {
		conn, err := chstore.NewConn(ctx, a.Config.Storage.ClickHouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		a.onClose(func() { _ = conn.Close() })
		trades = chstore.NewTradeStore(conn)
	}

	return pgstore.NewWatermarkStore(pool), trades, nil
}

// scanExecutors holds one executor per remote endpoint a scan talks to.
type scanExecutors struct {
	rpc      *resilience.Executor
	price    *resilience.Executor
	token    *resilience.Executor
	metadata *resilience.Executor
}

func (a *App) newScanExecutors() scanExecutors {
	r := a.Config.Resilience
	return scanExecutors{
		rpc:      a.newExecutor("rpc", r.RPCBreaker),
		price:    a.newExecutor("price", r.PriceBreaker),
		token:    a.newExecutor("token", r.TokenBreaker),
		metadata: a.newExecutor("metadata", r.MetadataBreaker),
	}
}

// newScanner wires the full scan pipeline.
func (a *App) newScanner(ctx context.Context) (*orchestrator.Scanner, error) {
	store, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	watermarks, trades, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	rpc := a.newRPC()
	execs := a.newScanExecutors()
	rpcExec := execs.rpc
	fetcher := ingestion.NewTransactionFetcher(rpc, rpcExec, a.Logger)

	httpClient := &http.Client{Timeout: a.Config.Pricing.Timeout}
	pricingOpts := []pricing.Option{pricing.WithHTTPClient(httpClient), pricing.WithLogger(a.Logger)}

	prices := pricing.NewNativePriceResolver(
		a.Config.Pricing.Native,
		execs.price,
		cache.NewTyped[domain.PriceQuote](store, cache.NativePrice),
		pricingOpts...,
	)
	tokens := pricing.NewTokenInfoResolver(
		a.Config.Pricing.Token,
		execs.token,
		cache.NewTyped[domain.TokenInfo](store, cache.TokenInfo),
		cache.NewTyped[[]pricing.TokenListing](store, cache.TokenList),
		pricingOpts...,
	)
	if a.Config.Pricing.OnChainMetadata {
		tokens.WithOnChainMetadata(rpc, execs.metadata)
	}

	return orchestrator.New(orchestrator.Options{
		Explorer:   ingestion.NewAccountExplorer(rpc, rpcExec, a.Config.RPC.Programs, a.Logger),
		Harvester:  ingestion.NewSignatureHarvester(rpc, rpcExec, fetcher, a.Config.HarvesterSettings(), a.Logger),
		Fetcher:    fetcher,
		Classifier: a.newClassifier(),
		Enricher:   orchestrator.NewEnricher(tokens, prices),
		Watermarks: watermarks,
		Trades:     trades,
		Cache:      store,
		Logger:     a.Logger,
	}), nil
}

// startMetrics serves /metrics and /health when metrics.addr is set. The
// server stops when ctx is done.
func (a *App) startMetrics(ctx context.Context) {
	addr := a.Config.Metrics.Addr
	if addr == "" {
		return
	}

	srv := observability.NewServer(addr)
	go func() {
		a.Logger.Info().Str("addr", addr).Msg("starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}

// Package orchestrator runs wallet scans end to end.
// It coordinates: discovery → signature harvest → fetch → classify → enrich → persist
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"solana-trade-ledger/internal/cache"
	"solana-trade-ledger/internal/classify"
	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/ingestion"
	"solana-trade-ledger/internal/observability"
	"solana-trade-ledger/internal/resilience"
	"solana-trade-ledger/internal/solana"
	"solana-trade-ledger/internal/storage"
)

// Scanner decides between full and incremental scans, runs the pipeline and
// advances the watermark.
type Scanner struct {
	explorer   *ingestion.AccountExplorer
	harvester  *ingestion.SignatureHarvester
	fetcher    *ingestion.TransactionFetcher
	classifier *classify.Classifier
	enricher   *Enricher

	watermarks storage.WatermarkStore
	trades     storage.TradeStore

	store    cache.Store
	analyses *cache.Typed[Result]

	log zerolog.Logger
	now func() time.Time
}

// Options for creating a Scanner.
type Options struct {
	// Pipeline
	Explorer   *ingestion.AccountExplorer
	Harvester  *ingestion.SignatureHarvester
	Fetcher    *ingestion.TransactionFetcher
	Classifier *classify.Classifier
	Enricher   *Enricher

	// Stores
	Watermarks storage.WatermarkStore
	Trades     storage.TradeStore

	// Cache holds wallet-analysis results. Nil uses a private in-memory store.
	Cache cache.Store

	Logger zerolog.Logger
	Now    func() time.Time
}

// New creates a Scanner.
func New(opts Options) *Scanner {
	if opts.Classifier == nil {
		opts.Classifier = classify.New()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryStore()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scanner{
		explorer:   opts.Explorer,
		harvester:  opts.Harvester,
		fetcher:    opts.Fetcher,
		classifier: opts.Classifier,
		enricher:   opts.Enricher,
		watermarks: opts.Watermarks,
		trades:     opts.Trades,
		store:      opts.Cache,
		analyses:   cache.NewTyped[Result](opts.Cache, cache.WalletAnalysis),
		log:        opts.Logger.With().Str("component", "scanner").Logger(),
		now:        opts.Now,
	}
}

func analysisKey(wallet, mint string) string {
	return wallet + ":" + mint
}

// Scan discovers, classifies and persists the trades of wallet, restricted to
// mint when it is non-empty.
//
// Without a stored watermark the whole history is scanned. Otherwise only
// signatures from the watermark second onward are harvested, trades already
// in the ledger are skipped and discovery is seeded with the mint filter. An
// open circuit or a cancelled ctx truncates the scan: completed work is
// persisted and the result is marked Partial, unless nothing was harvested at
// all, in which case the error is returned.
func (s *Scanner) Scan(ctx context.Context, wallet, mint string) (*Result, error) {
	if err := solana.ValidateAddress(wallet); err != nil {
		return nil, err
	}
	if mint != "" {
		if err := solana.ValidateAddress(mint); err != nil {
			return nil, fmt.Errorf("token mint: %w", err)
		}
	}

	log := s.log.With().Str("wallet", wallet).Str("mint", mint).Logger()

	if cached, ok, err := s.analyses.Get(ctx, analysisKey(wallet, mint)); err != nil {
		log.Warn().Err(err).Msg("wallet analysis cache read failed")
	} else if ok {
		cached.Cached = true
		return &cached, nil
	}

	res := &Result{Wallet: wallet, Mint: mint, Mode: ModeFull}
	wm, err := s.watermarks.Get(ctx, wallet, mint)
	switch {
	case err == nil:
		res.Mode = ModeIncremental
		res.Cutoff = wm.LastSeenTimestamp
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("read watermark: %w", err)
	}

	start := s.now()
	status := "ok"
	defer func() {
		observability.RecordScan(string(res.Mode), status, s.now().Sub(start))
	}()

	var known map[string]struct{}
	if res.Mode == ModeIncremental {
		if known, err = s.knownSignatures(ctx, wallet, mint); err != nil {
			status = "error"
			return nil, err
		}
	}

	newTrades, err := s.run(ctx, log, res, known)
	if err != nil {
		status = "error"
		return nil, err
	}
	if res.Partial {
		status = "partial"
	}

	// Work finished before a cancellation is still persisted.
	persistCtx := ctx
	if ctx.Err() != nil {
		persistCtx = context.WithoutCancel(ctx)
	}

	if len(newTrades) > 0 {
		if err := s.trades.Upsert(persistCtx, newTrades); err != nil {
			status = "error"
			return nil, fmt.Errorf("store trades: %w", err)
		}
		// Analyses of any scope for this wallet predate the new trades.
		if err := s.analyses.DeletePrefix(persistCtx, wallet+":"); err != nil {
			log.Warn().Err(err).Msg("wallet analysis cache invalidation failed")
		}
	}
	res.NewTrades = len(newTrades)

	if !res.Partial && len(newTrades) > 0 {
		var lastSeen int64
		for _, t := range newTrades {
			lastSeen = max(lastSeen, t.Timestamp)
		}
		err := s.watermarks.Set(persistCtx, &domain.Watermark{
			Wallet:            wallet,
			Mint:              mint,
			LastSeenTimestamp: lastSeen,
			UpdatedAt:         s.now().UnixMilli(),
		})
		if err != nil {
			status = "error"
			return nil, fmt.Errorf("advance watermark: %w", err)
		}
		res.LastSeenUpdated = lastSeen
	}

	ledger, err := s.trades.GetByWallet(persistCtx, wallet, mint)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("load trades: %w", err)
	}
	res.Trades = ledger
	res.summarize()

	if !res.Partial {
		if err := s.analyses.Set(persistCtx, analysisKey(wallet, mint), *res); err != nil {
			log.Warn().Err(err).Msg("wallet analysis cache write failed")
		}
	}

	log.Info().
		Str("mode", string(res.Mode)).
		Int("accounts", res.Accounts).
		Int("signatures", res.Signatures).
		Int("new_trades", res.NewTrades).
		Int("total_trades", len(res.Trades)).
		Bool("partial", res.Partial).
		Msg("scan complete")
	return res, nil
}

// knownSignatures returns the signatures already in the ledger for the scope.
func (s *Scanner) knownSignatures(ctx context.Context, wallet, mint string) (map[string]struct{}, error) {
	stored, err := s.trades.GetByWallet(ctx, wallet, mint)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	known := make(map[string]struct{}, len(stored))
	for _, t := range stored {
		known[t.Signature] = struct{}{}
	}
	return known, nil
}

// run executes discovery, harvesting and classification, returning the new
// trades oldest first. Signatures in known are not fetched again. An open
// circuit or a cancelled ctx sets res.Partial and keeps the trades collected
// so far.
func (s *Scanner) run(ctx context.Context, log zerolog.Logger, res *Result, known map[string]struct{}) ([]*domain.Trade, error) {
	scanCache := ingestion.NewScanCache()

	discoverMint := ""
	if res.Mode == ModeIncremental {
		discoverMint = res.Mint
	}
	discovery, err := s.explorer.Discover(ctx, res.Wallet, discoverMint)
	if err != nil {
		if !resilience.IsCircuitOpen(err) {
			return nil, fmt.Errorf("discover accounts: %w", err)
		}
		log.Warn().Err(err).Msg("partial/rate-limited: account discovery truncated")
		res.Partial = true
	}
	res.Accounts = len(discovery.Accounts)

	refs, err := s.harvest(ctx, log, res, discovery.Accounts, scanCache)
	if err != nil {
		return nil, err
	}
	res.Signatures = len(refs)
	if res.Partial && len(refs) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scan %s: %w", res.Wallet, err)
		}
		return nil, fmt.Errorf("scan %s: %w", res.Wallet, resilience.ErrCircuitOpen)
	}

	var trades []*domain.Trade
	for _, ref := range refs {
		if _, ok := known[ref.Signature]; ok {
			continue
		}
		if ctx.Err() != nil {
			log.Warn().Int("classified", len(trades)).Msg("scan cancelled, keeping classified trades")
			res.Partial = true
			break
		}

		tx, err := s.fetcher.FetchCached(ctx, scanCache, ref.Signature)
		if err != nil {
			if ctx.Err() != nil {
				log.Warn().Int("classified", len(trades)).Msg("scan cancelled, keeping classified trades")
				res.Partial = true
				break
			}
			if resilience.IsCircuitOpen(err) {
				log.Warn().Err(err).Int("classified", len(trades)).Msg("partial/rate-limited: transaction fetch truncated")
				res.Partial = true
				break
			}
			log.Debug().Err(err).Str("signature", ref.Signature).Msg("skipping transaction")
			continue
		}
		if tx == nil {
			continue
		}

		trade, reason := s.classifier.Classify(tx, res.Wallet, res.Mint)
		if trade == nil {
			log.Trace().Str("signature", ref.Signature).Str("reason", string(reason)).Msg("not a trade")
			continue
		}
		if s.enricher != nil {
			if err := s.enricher.Enrich(ctx, trade); err != nil {
				if ctx.Err() == nil {
					return nil, fmt.Errorf("enrich %s: %w", ref.Signature, err)
				}
				log.Warn().Int("classified", len(trades)).Msg("scan cancelled, keeping classified trades")
				res.Partial = true
				break
			}
		}
		observability.RecordTrade(trade.Direction.String())
		trades = append(trades, trade)
	}
	return trades, nil
}

// harvest collects signatures for every account, the wallet root first,
// deduplicated and sorted oldest first.
func (s *Scanner) harvest(ctx context.Context, log zerolog.Logger, res *Result, accounts []string, scanCache *ingestion.ScanCache) ([]domain.SignatureRef, error) {
	ordered := make([]string, 0, len(accounts)+1)
	ordered = append(ordered, res.Wallet)
	for _, acc := range accounts {
		if acc != res.Wallet {
			ordered = append(ordered, acc)
		}
	}

	seen := make(map[string]struct{})
	var refs []domain.SignatureRef

	for _, acc := range ordered {
		got, err := s.harvester.Harvest(ctx, ingestion.HarvestRequest{
			Account: acc,
			Cutoff:  res.Cutoff,
			Root:    acc == res.Wallet,
		}, scanCache)
		for _, ref := range got {
			if _, dup := seen[ref.Signature]; dup {
				continue
			}
			seen[ref.Signature] = struct{}{}
			refs = append(refs, ref)
		}
		if err != nil {
			switch {
			case ctx.Err() != nil:
				log.Warn().Err(err).Str("account", acc).Msg("scan cancelled during signature harvest")
			case resilience.IsCircuitOpen(err):
				log.Warn().Err(err).Str("account", acc).Msg("partial/rate-limited: signature harvest truncated")
			default:
				return nil, fmt.Errorf("harvest %s: %w", acc, err)
			}
			res.Partial = true
			break
		}
	}

	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].BlockTime != refs[j].BlockTime {
			return refs[i].BlockTime < refs[j].BlockTime
		}
		return refs[i].Signature < refs[j].Signature
	})
	return refs, nil
}

// ClearCache drops cached wallet analyses for wallet, or every cached entry
// of every kind when wallet is empty.
func (s *Scanner) ClearCache(ctx context.Context, wallet string) error {
	if wallet == "" {
		return cache.ClearAll(ctx, s.store)
	}
	return s.analyses.DeletePrefix(ctx, wallet+":")
}

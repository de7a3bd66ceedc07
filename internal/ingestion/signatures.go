package ingestion

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/observability"
	"solana-trade-ledger/internal/resilience"
	"solana-trade-ledger/internal/solana"
)

// HarvesterConfig configures signature harvesting.
type HarvesterConfig struct {
	// RootPageSize is the page size for the wallet itself.
	RootPageSize int
	// AuxPageSize is the page size for discovered token accounts.
	AuxPageSize int
	// PageDelay is the pause between consecutive page requests.
	PageDelay time.Duration
	// MinNativeDelta is the minimum |Δ SOL| of account 0 for an auxiliary
	// account transaction to be kept.
	MinNativeDelta decimal.Decimal
}

// DefaultHarvesterConfig returns the default harvester configuration.
func DefaultHarvesterConfig() HarvesterConfig {
	return HarvesterConfig{
		RootPageSize:   1000,
		AuxPageSize:    100,
		PageDelay:      100 * time.Millisecond,
		MinNativeDelta: decimal.New(1, -4),
	}
}

// HarvestRequest selects one account history to page through.
type HarvestRequest struct {
	Account string
	// Cutoff drops signatures older than this unix time. Signatures in the
	// cutoff second itself are kept. Zero means unbounded.
	Cutoff int64
	// Root marks the wallet itself; its signatures are kept without inspection.
	Root bool
}

// SignatureHarvester pages through getSignaturesForAddress.
type SignatureHarvester struct {
	rpc     solana.RPCClient
	exec    *resilience.Executor
	fetcher *TransactionFetcher
	cfg     HarvesterConfig
	log     zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewSignatureHarvester creates a harvester. Auxiliary-account filtering
// fetches transactions through fetcher.
func NewSignatureHarvester(rpc solana.RPCClient, exec *resilience.Executor, fetcher *TransactionFetcher, cfg HarvesterConfig, log zerolog.Logger) *SignatureHarvester {
	def := DefaultHarvesterConfig()
	if cfg.RootPageSize <= 0 {
		cfg.RootPageSize = def.RootPageSize
	}
	if cfg.AuxPageSize <= 0 {
		cfg.AuxPageSize = def.AuxPageSize
	}
	if cfg.MinNativeDelta.IsZero() {
		cfg.MinNativeDelta = def.MinNativeDelta
	}
	return &SignatureHarvester{
		rpc:     rpc,
		exec:    exec,
		fetcher: fetcher,
		cfg:     cfg,
		log:     log.With().Str("component", "harvester").Logger(),
		sleep:   resilience.Sleep,
	}
}

// Harvest returns the signatures of req.Account at or after req.Cutoff,
// newest first.
//
// A failed page ends harvesting for the account and returns what was
// collected with a nil error. Circuit-open and context errors are returned
// together with the partial result.
func (h *SignatureHarvester) Harvest(ctx context.Context, req HarvestRequest, cache *ScanCache) ([]domain.SignatureRef, error) {
	pageSize := h.cfg.AuxPageSize
	if req.Root {
		pageSize = h.cfg.RootPageSize
	}

	var (
		out    []domain.SignatureRef
		before string
	)

	defer func() {
		observability.RecordSignaturesHarvested(len(out))
	}()

	for page := 0; ; page++ {
		if page > 0 {
			if err := h.sleep(ctx, h.cfg.PageDelay); err != nil {
				return out, err
			}
		}

		opts := &solana.SignaturesOpts{
			Before:     before,
			Limit:      pageSize,
			Commitment: solana.CommitmentConfirmed,
		}
		sigs, err := resilience.Call(ctx, h.exec, "getSignaturesForAddress",
			func(ctx context.Context) ([]solana.SignatureInfo, error) {
				return h.rpc.GetSignaturesForAddress(ctx, req.Account, opts)
			})
		if err != nil {
			if resilience.IsCircuitOpen(err) || ctx.Err() != nil {
				return out, err
			}
			h.log.Warn().Err(err).
				Str("account", req.Account).
				Int("page", page).
				Int("collected", len(out)).
				Msg("signature page failed, keeping partial history")
			return out, nil
		}

		reachedCutoff := false
		for _, sig := range sigs {
			if req.Cutoff > 0 {
				if sig.BlockTime == nil {
					continue
				}
				if *sig.BlockTime < req.Cutoff {
					reachedCutoff = true
					continue
				}
			}

			if !req.Root {
				keep, err := h.touchesWallet(ctx, cache, sig.Signature)
				if err != nil {
					if resilience.IsCircuitOpen(err) || ctx.Err() != nil {
						return out, err
					}
					h.log.Debug().Err(err).Str("signature", sig.Signature).Msg("skipping unreadable transaction")
					continue
				}
				if !keep {
					continue
				}
			}

			ref := domain.SignatureRef{Signature: sig.Signature}
			if sig.BlockTime != nil {
				ref.BlockTime = *sig.BlockTime
			}
			out = append(out, ref)
		}

		if len(sigs) < pageSize || reachedCutoff {
			return out, nil
		}
		before = sigs[len(sigs)-1].Signature
	}
}

// touchesWallet reports whether an auxiliary-account transaction carries token
// balances and moves the fee payer's SOL balance by at least MinNativeDelta.
func (h *SignatureHarvester) touchesWallet(ctx context.Context, cache *ScanCache, signature string) (bool, error) {
	tx, err := h.fetcher.FetchCached(ctx, cache, signature)
	if err != nil {
		return false, err
	}
	if tx == nil || !tx.Meta.HasTokenBalances() {
		return false, nil
	}
	meta := tx.Meta
	if len(meta.PreBalances) == 0 || len(meta.PostBalances) == 0 {
		return false, nil
	}

	delta := solana.LamportsToSOL(meta.PostBalances[0]).Sub(solana.LamportsToSOL(meta.PreBalances[0]))
	return delta.Abs().GreaterThanOrEqual(h.cfg.MinNativeDelta), nil
}

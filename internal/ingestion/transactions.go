package ingestion

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"solana-trade-ledger/internal/observability"
	"solana-trade-ledger/internal/resilience"
	"solana-trade-ledger/internal/solana"
)

// TransactionFetcher retrieves full transactions through the resilience layer.
type TransactionFetcher struct {
	rpc  solana.RPCClient
	exec *resilience.Executor
	log  zerolog.Logger
}

// NewTransactionFetcher creates a fetcher.
func NewTransactionFetcher(rpc solana.RPCClient, exec *resilience.Executor, log zerolog.Logger) *TransactionFetcher {
	return &TransactionFetcher{
		rpc:  rpc,
		exec: exec,
		log:  log.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch returns the transaction for signature.
//
// Returns (nil, nil) when the node has no such transaction, or when the call
// was throttled or timed out on every attempt. Circuit-open and context
// errors are returned as-is; other failures are returned wrapped and callers
// skip the signature.
func (f *TransactionFetcher) Fetch(ctx context.Context, signature string) (*solana.Transaction, error) {
	tx, err := f.get(ctx, signature, solana.EncodingJSONParsed)
	if err != nil && solana.IsRPCCode(err, solana.CodeInternalError) {
		f.log.Debug().Str("signature", signature).Msg("jsonParsed rejected, retrying with base64")
		tx, err = f.get(ctx, signature, solana.EncodingBase64)
	}

	switch {
	case err == nil:
		if tx == nil {
			observability.RecordTransactionFetch("missing")
		} else {
			observability.RecordTransactionFetch("found")
		}
		return tx, nil
	case resilience.IsCircuitOpen(err), ctx.Err() != nil:
		return nil, err
	case resilience.IsTransient(err):
		observability.RecordTransactionFetch("skipped")
		f.log.Warn().Err(err).Str("signature", signature).Msg("transaction unavailable after retries")
		return nil, nil
	default:
		observability.RecordTransactionFetch("error")
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}
}

func (f *TransactionFetcher) get(ctx context.Context, signature string, encoding solana.Encoding) (*solana.Transaction, error) {
	return resilience.Call(ctx, f.exec, "getTransaction", func(ctx context.Context) (*solana.Transaction, error) {
		return f.rpc.GetTransaction(ctx, signature, encoding)
	})
}

// FetchCached consults cache before fetching and memoises every non-error result.
func (f *TransactionFetcher) FetchCached(ctx context.Context, cache *ScanCache, signature string) (*solana.Transaction, error) {
	if cache != nil {
		if tx, ok := cache.Get(signature); ok {
			return tx, nil
		}
	}

	tx, err := f.Fetch(ctx, signature)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.Put(signature, tx)
	}
	return tx, nil
}

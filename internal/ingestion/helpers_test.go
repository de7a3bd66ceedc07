package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-trade-ledger/internal/resilience"
	"solana-trade-ledger/internal/solana"
)

var nopLog = zerolog.Nop()

// newTestExecutor retries without sleeping.
func newTestExecutor() *resilience.Executor {
	return resilience.NewExecutor(
		resilience.NewBreaker("rpc", resilience.DefaultBreakerConfig()),
		resilience.DefaultConfig(),
		resilience.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		resilience.WithJitter(func(time.Duration) time.Duration { return 0 }),
	)
}

// openExecutor returns an executor whose breaker is already open.
func openExecutor() *resilience.Executor {
	b := resilience.NewBreaker("rpc", resilience.BreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	b.RecordFailure()
	return resilience.NewExecutor(b, resilience.DefaultConfig())
}

func sigInfo(signature string, blockTime int64) solana.SignatureInfo {
	bt := blockTime
	return solana.SignatureInfo{Signature: signature, BlockTime: &bt}
}

// sigRange builds n signatures named prefix-i, newest first, starting at newest.
func sigRange(prefix string, n int, newest int64) []solana.SignatureInfo {
	out := make([]solana.SignatureInfo, n)
	for i := 0; i < n; i++ {
		out[i] = sigInfo(fmt.Sprintf("%s-%d", prefix, i), newest-int64(i))
	}
	return out
}

// tokenTx builds a transaction with one token balance entry and the given
// fee payer lamport movement.
func tokenTx(signature string, preLamports, postLamports uint64) *solana.Transaction {
	return &solana.Transaction{
		Signature: signature,
		BlockTime: 1_700_000_000,
		Meta: &solana.TransactionMeta{
			Fee:               5000,
			PreBalances:       []uint64{preLamports},
			PostBalances:      []uint64{postLamports},
			PreTokenBalances:  []solana.TokenBalance{},
			PostTokenBalances: []solana.TokenBalance{{AccountIndex: 1, Mint: "MintA", Owner: "Wallet"}},
		},
	}
}

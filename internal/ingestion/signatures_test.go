package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-ledger/internal/resilience"
	"solana-trade-ledger/internal/solana"
	"solana-trade-ledger/internal/solana/stub"
)

func newTestHarvester(rpc solana.RPCClient, exec *resilience.Executor) *SignatureHarvester {
	cfg := DefaultHarvesterConfig()
	cfg.PageDelay = 0
	return NewSignatureHarvester(rpc, exec, NewTransactionFetcher(rpc, exec, nopLog), cfg, nopLog)
}

func TestHarvest_PaginatesUntilShortPage(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("Wallet", sigRange("sig", 2400, 1_700_000_000)...)

	h := newTestHarvester(rpc, newTestExecutor())
	refs, err := h.Harvest(context.Background(), HarvestRequest{Account: "Wallet", Root: true}, NewScanCache())
	require.NoError(t, err)

	assert.Len(t, refs, 2400)
	assert.Equal(t, 3, rpc.Calls(stub.MethodGetSignaturesForAddress))

	reqs := rpc.SignatureRequests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "", reqs[0].Before)
	assert.Equal(t, "sig-999", reqs[1].Before)
	assert.Equal(t, "sig-1999", reqs[2].Before)
	for _, r := range reqs {
		assert.Equal(t, 1000, r.Limit)
		assert.Equal(t, solana.CommitmentConfirmed, r.Commitment)
	}
}

func TestHarvest_ExactMultipleNeedsEmptyPage(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("Wallet", sigRange("sig", 2000, 1_700_000_000)...)

	refs, err := newTestHarvester(rpc, newTestExecutor()).
		Harvest(context.Background(), HarvestRequest{Account: "Wallet", Root: true}, NewScanCache())
	require.NoError(t, err)

	assert.Len(t, refs, 2000)
	assert.Equal(t, 3, rpc.Calls(stub.MethodGetSignaturesForAddress))
}

func TestHarvest_CutoffStopsPaging(t *testing.T) {
	rpc := stub.NewRPCClient()
	// Block times 1000, 999, ..., 1 across 1000 signatures.
	rpc.AddSignatures("Wallet", sigRange("sig", 1000, 1000)...)

	cfg := DefaultHarvesterConfig()
	cfg.RootPageSize = 100
	cfg.PageDelay = 0
	exec := newTestExecutor()
	h := NewSignatureHarvester(rpc, exec, NewTransactionFetcher(rpc, exec, nopLog), cfg, nopLog)

	refs, err := h.Harvest(context.Background(), HarvestRequest{Account: "Wallet", Root: true, Cutoff: 850}, NewScanCache())
	require.NoError(t, err)

	// 1000 down to 850 inclusive.
	require.Len(t, refs, 151)
	for _, r := range refs {
		assert.GreaterOrEqual(t, r.BlockTime, int64(850))
	}
	assert.Equal(t, 2, rpc.Calls(stub.MethodGetSignaturesForAddress))
}

func TestHarvest_CutoffKeepsSameSecond(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("Wallet",
		sigInfo("later-slot", 500),
		sigInfo("seen", 500),
		sigInfo("older", 499),
	)

	refs, err := newTestHarvester(rpc, newTestExecutor()).
		Harvest(context.Background(), HarvestRequest{Account: "Wallet", Root: true, Cutoff: 500}, nil)
	require.NoError(t, err)

	require.Len(t, refs, 2)
	assert.Equal(t, "later-slot", refs[0].Signature)
	assert.Equal(t, "seen", refs[1].Signature)
}

func TestHarvest_PagingContinuesThroughCutoffSecond(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("Wallet",
		sigInfo("a", 700),
		sigInfo("b", 600),
		sigInfo("c", 600),
		sigInfo("d", 600),
		sigInfo("e", 599),
	)

	cfg := DefaultHarvesterConfig()
	cfg.RootPageSize = 2
	cfg.PageDelay = 0
	exec := newTestExecutor()
	h := NewSignatureHarvester(rpc, exec, NewTransactionFetcher(rpc, exec, nopLog), cfg, nopLog)

	refs, err := h.Harvest(context.Background(), HarvestRequest{Account: "Wallet", Root: true, Cutoff: 600}, nil)
	require.NoError(t, err)

	// A page ending inside the cutoff second does not stop paging.
	require.Len(t, refs, 4)
	assert.Equal(t, "d", refs[3].Signature)
	assert.Equal(t, 3, rpc.Calls(stub.MethodGetSignaturesForAddress))
}

func TestHarvest_CutoffDropsUnknownBlockTime(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("Wallet",
		sigInfo("new", 200),
		solana.SignatureInfo{Signature: "no-time"},
		sigInfo("old", 50),
	)

	h := newTestHarvester(rpc, newTestExecutor())

	refs, err := h.Harvest(context.Background(), HarvestRequest{Account: "Wallet", Root: true, Cutoff: 100}, nil)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "new", refs[0].Signature)

	refs, err = h.Harvest(context.Background(), HarvestRequest{Account: "Wallet", Root: true}, nil)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, int64(0), refs[1].BlockTime)
}

func TestHarvest_AuxiliaryAccountFiltersTransactions(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("TokenAcc",
		sigInfo("swap", 300),
		sigInfo("dust", 200),
		sigInfo("no-balances", 100),
		sigInfo("missing", 50),
	)
	rpc.AddTransaction(tokenTx("swap", 2_000_000_000, 1_500_000_000))
	rpc.AddTransaction(tokenTx("dust", 2_000_000_000, 1_999_950_000)) // 0.00005 SOL
	rpc.AddTransaction(&solana.Transaction{
		Signature: "no-balances",
		Meta:      &solana.TransactionMeta{PreBalances: []uint64{1e9}, PostBalances: []uint64{2e9}},
	})

	cache := NewScanCache()
	refs, err := newTestHarvester(rpc, newTestExecutor()).
		Harvest(context.Background(), HarvestRequest{Account: "TokenAcc"}, cache)
	require.NoError(t, err)

	require.Len(t, refs, 1)
	assert.Equal(t, "swap", refs[0].Signature)
	assert.Equal(t, []solana.SignaturesOpts{{Limit: 100, Commitment: solana.CommitmentConfirmed}}, rpc.SignatureRequests())

	// Every inspected transaction is memoised, missing ones included.
	assert.Equal(t, 4, cache.Len())
	tx, ok := cache.Get("missing")
	assert.True(t, ok)
	assert.Nil(t, tx)
}

func TestHarvest_PageErrorKeepsPartialHistory(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("Wallet", sigRange("sig", 1500, 1_700_000_000)...)
	perm := &solana.RPCError{Code: solana.CodeInvalidParams, Message: "Invalid param"}
	rpc.FailNext(stub.MethodGetSignaturesForAddress, nil, perm)

	refs, err := newTestHarvester(rpc, newTestExecutor()).
		Harvest(context.Background(), HarvestRequest{Account: "Wallet", Root: true}, nil)
	require.NoError(t, err)
	assert.Len(t, refs, 1000)
}

func TestHarvest_CircuitOpenPropagates(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("Wallet", sigRange("sig", 10, 1_700_000_000)...)

	refs, err := newTestHarvester(rpc, openExecutor()).
		Harvest(context.Background(), HarvestRequest{Account: "Wallet", Root: true}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Empty(t, refs)
	assert.Zero(t, rpc.Calls(stub.MethodGetSignaturesForAddress))
}

func TestHarvest_CancelledBetweenPages(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures("Wallet", sigRange("sig", 2500, 1_700_000_000)...)

	cfg := DefaultHarvesterConfig()
	cfg.PageDelay = time.Hour
	exec := newTestExecutor()
	h := NewSignatureHarvester(rpc, exec, NewTransactionFetcher(rpc, exec, nopLog), cfg, nopLog)

	ctx, cancel := context.WithCancel(context.Background())
	h.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	refs, err := h.Harvest(ctx, HarvestRequest{Account: "Wallet", Root: true}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, refs, 1000)
}

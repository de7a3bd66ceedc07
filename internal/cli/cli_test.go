package cli

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-ledger/internal/classify"
	"solana-trade-ledger/internal/config"
	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/orchestrator"
	"solana-trade-ledger/internal/solana"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version: dev")
	assert.Contains(t, out, "commit: unknown")
}

func TestClearCacheCommand_InMemory(t *testing.T) {
	out, err := run(t, "--use-memory", "clear-cache")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared all caches")

	_, err = run(t, "--use-memory", "clear-cache", "not-a-wallet")
	assert.ErrorIs(t, err, solana.ErrInvalidAddress)
}

func TestScanCommand_RejectsInvalidWallet(t *testing.T) {
	_, err := run(t, "--use-memory", "scan", "not-a-wallet")
	assert.ErrorIs(t, err, solana.ErrInvalidAddress)

	_, err = run(t, "--use-memory", "scan", "--format", "xml", "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	assert.Error(t, err)
}

func TestMigrateCommand_RequiresDSN(t *testing.T) {
	t.Setenv("TRADELEDGER_STORAGE_POSTGRES_DSN", "")
	t.Setenv("TRADELEDGER_STORAGE_CLICKHOUSE_DSN", "")
	_, err := run(t, "migrate")
	assert.ErrorContains(t, err, "nothing to migrate")
}

func TestScanExecutors_MetadataHasOwnBreaker(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	app := NewApp(cfg, zerolog.Nop(), true)

	execs := app.newScanExecutors()
	assert.Equal(t, "rpc", execs.rpc.Breaker().Name())
	assert.Equal(t, "metadata", execs.metadata.Breaker().Name())
	assert.NotSame(t, execs.rpc.Breaker(), execs.metadata.Breaker())

	// Tripping the metadata circuit leaves the scan circuit closed.
	for i := 0; i < cfg.Resilience.MetadataBreaker.MaxFailures; i++ {
		execs.metadata.Breaker().RecordFailure()
	}
	assert.Error(t, execs.metadata.Breaker().Allow())
	assert.NoError(t, execs.rpc.Breaker().Allow())
}

func sampleResult() *orchestrator.Result {
	return &orchestrator.Result{
		Wallet:       "W",
		Mode:         orchestrator.ModeFull,
		NewTrades:    1,
		UniqueTokens: 1,
		TotalVolume:  decimal.RequireFromString("75"),
		Trades: []*domain.Trade{{
			Wallet:            "W",
			Signature:         "sig-1",
			Timestamp:         1_700_000_000,
			Direction:         domain.DirectionBuy,
			TokenMint:         "MintT",
			TokenSymbol:       "TT",
			TokenAmountChange: decimal.NewFromInt(100),
			NativeAmount:      decimal.RequireFromString("-0.5"),
			USDValue:          decimal.NewFromInt(75),
		}},
	}
}

func TestWriteResult_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, sampleResult(), formatText))

	out := buf.String()
	assert.Contains(t, out, "mode: full")
	assert.Contains(t, out, "status: complete")
	assert.Contains(t, out, "total volume: $75.00")
	assert.Contains(t, out, "2023-11-14T22:13:20Z")
	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "-0.500000")
	assert.Contains(t, out, "sig-1")
}

func TestWriteResult_JSON(t *testing.T) {
	res := sampleResult()
	res.Partial = true

	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, res, formatJSON))

	var decoded orchestrator.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.True(t, decoded.Partial)
	require.Len(t, decoded.Trades, 1)
	assert.Equal(t, "sig-1", decoded.Trades[0].Signature)
}

func TestInspect(t *testing.T) {
	tx := &solana.Transaction{
		Signature: "sig",
		BlockTime: 1_700_000_000,
		Meta: &solana.TransactionMeta{
			Fee:          5_000,
			PreBalances:  []uint64{5_000_000_000},
			PostBalances: []uint64{5_050_000_000},
			PreTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: "MintT", Owner: "W", UIAmount: decimal.NewFromInt(100)},
				{AccountIndex: 2, Mint: "Tiny", Owner: "W", UIAmount: decimal.NewFromInt(1)},
			},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: "MintT", Owner: "W", UIAmount: decimal.NewFromInt(80)},
				{AccountIndex: 2, Mint: "Tiny", Owner: "W", UIAmount: decimal.RequireFromString("1.00001")},
			},
		},
	}

	report, err := inspect(tx, classify.New(), "W", "")
	require.NoError(t, err)

	// The fine dust threshold keeps the tiny change the classifier ignores.
	require.Len(t, report.TokenChanges, 2)
	require.NotNil(t, report.NativeChange)
	assert.Equal(t, "0.050005", report.NativeChange.String())
	assert.Equal(t, classify.ReasonTrade, report.Verdict)
	require.NotNil(t, report.Trade)
	assert.Equal(t, domain.DirectionSell, report.Trade.Direction)
	assert.Len(t, report.Trade.AllTokenChanges, 1)

	var buf bytes.Buffer
	require.NoError(t, writeInspection(&buf, report))
	assert.Contains(t, buf.String(), "verdict: trade")

	_, err = inspect(&solana.Transaction{Signature: "x"}, classify.New(), "", "")
	assert.Error(t, err)
}

func TestWatchLoop_DebouncesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan solana.LogNotification)
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, ch, 20*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			return nil
		}, zerolog.Nop())
	}()

	for i := 0; i < 5; i++ {
		ch <- solana.LogNotification{Signature: "burst"}
	}
	ch <- solana.LogNotification{Signature: "failed", Err: "boom"}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatchLoop_IgnoresFailedAndSurvivesTriggerErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan solana.LogNotification, 4)
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, ch, 10*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			return errors.New("rpc down")
		}, zerolog.Nop())
	}()

	ch <- solana.LogNotification{Signature: "failed", Err: "boom"}
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, calls.Load())

	ch <- solana.LogNotification{Signature: "ok"}
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	close(ch)
	assert.ErrorContains(t, <-done, "subscription closed")
}

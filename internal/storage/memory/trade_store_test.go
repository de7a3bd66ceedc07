package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/storage"
)

func trade(wallet, sig, mint string, ts int64) *domain.Trade {
	return &domain.Trade{
		Wallet:            wallet,
		Signature:         sig,
		Timestamp:         ts,
		Direction:         domain.DirectionBuy,
		TokenMint:         mint,
		TokenAmountChange: decimal.NewFromInt(10),
		NativeAmount:      decimal.NewFromFloat(-0.5),
		USDValue:          decimal.NewFromInt(75),
		Fee:               decimal.New(5, -6),
		AllTokenChanges: []domain.TokenChange{
			{AccountIndex: 1, Mint: mint, Owner: wallet, Change: decimal.NewFromInt(10)},
		},
	}
}

func TestTradeStore_UpsertAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()

	require.NoError(t, s.Upsert(ctx, []*domain.Trade{
		trade("w", "sigC", "m1", 300),
		trade("w", "sigB", "m2", 100),
		trade("w", "sigA", "m1", 100),
		trade("other", "sigD", "m1", 50),
	}))

	got, err := s.GetByWallet(ctx, "w", "")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"sigA", "sigB", "sigC"}, []string{got[0].Signature, got[1].Signature, got[2].Signature})

	got, err = s.GetByWallet(ctx, "w", "m1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestTradeStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()

	first := trade("w", "sig", "m1", 100)
	require.NoError(t, s.Upsert(ctx, []*domain.Trade{first}))

	updated := trade("w", "sig", "m1", 100)
	updated.TokenSymbol = "BONK"
	require.NoError(t, s.Upsert(ctx, []*domain.Trade{updated}))

	assert.Equal(t, 1, s.Len())
	got, err := s.GetByWallet(ctx, "w", "")
	require.NoError(t, err)
	assert.Equal(t, "BONK", got[0].TokenSymbol)
}

func TestTradeStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()

	in := trade("w", "sig", "m1", 100)
	require.NoError(t, s.Upsert(ctx, []*domain.Trade{in}))
	in.AllTokenChanges[0].Mint = "mutated"

	got, err := s.GetByWallet(ctx, "w", "")
	require.NoError(t, err)
	assert.Equal(t, "m1", got[0].AllTokenChanges[0].Mint)

	got[0].AllTokenChanges[0].Mint = "mutated"
	again, _ := s.GetByWallet(ctx, "w", "")
	assert.Equal(t, "m1", again[0].AllTokenChanges[0].Mint)
}

func TestTradeStore_InvalidBatchWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()

	bad := trade("w", "", "m1", 1)
	err := s.Upsert(ctx, []*domain.Trade{trade("w", "ok", "m1", 1), bad})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	assert.Equal(t, 0, s.Len())

	wrongDir := trade("w", "sig", "m1", 1)
	wrongDir.Direction = "HOLD"
	assert.ErrorIs(t, s.Upsert(ctx, []*domain.Trade{wrongDir}), storage.ErrInvalidInput)
}

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/storage/migrations"
	"solana-trade-ledger/internal/storage/postgres"
)

// setupTestDB creates a PostgreSQL container and applies the embedded migrations.
// The container is terminated when the test finishes.
func setupTestDB(t *testing.T) *postgres.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")
	t.Cleanup(pool.Close)

	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err, "failed to apply migrations")
	require.NotEmpty(t, applied)

	// Idempotent on a second run.
	_, err = migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)

	return pool
}

func ptr[T any](v T) *T {
	return &v
}

func sampleTrade(wallet, sig, mint string, ts int64) *domain.Trade {
	return &domain.Trade{
		Wallet:            wallet,
		Signature:         sig,
		Timestamp:         ts,
		Direction:         domain.DirectionSell,
		TokenMint:         mint,
		TokenSymbol:       "TKN",
		TokenName:         "Token",
		TokenAmountChange: decimal.RequireFromString("-20.123456789"),
		NativeAmount:      decimal.RequireFromString("0.050005"),
		USDValue:          decimal.RequireFromString("7.01070100"),
		Fee:               decimal.RequireFromString("0.000005"),
		AllTokenChanges: []domain.TokenChange{
			{AccountIndex: 1, Mint: mint, Owner: wallet, Change: decimal.RequireFromString("-20.123456789")},
		},
	}
}

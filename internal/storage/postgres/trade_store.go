package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
// Amounts are stored as NUMERIC and token changes as JSONB.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Upsert inserts or replaces trades in a single transaction.
func (s *TradeStore) Upsert(ctx context.Context, trades []*domain.Trade) (err error) {
	if len(trades) == 0 {
		return nil
	}
	for _, t := range trades {
		if err := storage.ValidateTrade(t); err != nil {
			return err
		}
	}
	defer observe("upsert_trades", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO trades (
			wallet, signature, block_time, direction, token_mint, token_symbol, token_name, token_logo,
			token_amount_change, native_amount, usd_value, fee, token_changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11::numeric, $12::numeric, $13::jsonb)
		ON CONFLICT (wallet, signature) DO UPDATE SET
			block_time = EXCLUDED.block_time,
			direction = EXCLUDED.direction,
			token_mint = EXCLUDED.token_mint,
			token_symbol = EXCLUDED.token_symbol,
			token_name = EXCLUDED.token_name,
			token_logo = EXCLUDED.token_logo,
			token_amount_change = EXCLUDED.token_amount_change,
			native_amount = EXCLUDED.native_amount,
			usd_value = EXCLUDED.usd_value,
			fee = EXCLUDED.fee,
			token_changes = EXCLUDED.token_changes,
			updated_at = now()
	`

	for _, t := range trades {
		changes, err := json.Marshal(t.AllTokenChanges)
		if err != nil {
			return fmt.Errorf("encode token changes for %s: %w", t.Signature, err)
		}
		_, err = tx.Exec(ctx, query,
			t.Wallet,
			t.Signature,
			t.Timestamp,
			string(t.Direction),
			t.TokenMint,
			t.TokenSymbol,
			t.TokenName,
			t.TokenLogo,
			t.TokenAmountChange.String(),
			t.NativeAmount.String(),
			t.USDValue.String(),
			t.Fee.String(),
			string(changes),
		)
		if err != nil {
			return fmt.Errorf("upsert trade %s: %w", t.Signature, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByWallet retrieves a wallet's trades ordered by block time ASC, then signature.
func (s *TradeStore) GetByWallet(ctx context.Context, wallet, mint string) (_ []*domain.Trade, err error) {
	defer observe("get_trades", time.Now(), &err)

	query := `
		SELECT wallet, signature, block_time, direction, token_mint, token_symbol, token_name, token_logo,
			token_amount_change::text, native_amount::text, usd_value::text, fee::text, token_changes::text
		FROM trades
		WHERE wallet = $1 AND ($2 = '' OR token_mint = $2)
		ORDER BY block_time ASC, signature ASC
	`

	rows, err := s.pool.Query(ctx, query, wallet, mint)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}

// scanTrade scans a single row into Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var direction, amount, native, usd, fee, changes string

	err := row.Scan(
		&t.Wallet,
		&t.Signature,
		&t.Timestamp,
		&direction,
		&t.TokenMint,
		&t.TokenSymbol,
		&t.TokenName,
		&t.TokenLogo,
		&amount,
		&native,
		&usd,
		&fee,
		&changes,
	)
	if err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(direction)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&t.TokenAmountChange, amount},
		{&t.NativeAmount, native},
		{&t.USDValue, usd},
		{&t.Fee, fee},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", f.src, err)
		}
	}

	if err := json.Unmarshal([]byte(changes), &t.AllTokenChanges); err != nil {
		return nil, fmt.Errorf("decode token changes: %w", err)
	}
	return &t, nil
}

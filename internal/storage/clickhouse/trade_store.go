package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/storage"
)

// TradeStore implements storage.TradeStore on a ReplacingMergeTree keyed by
// (wallet, signature). Reads use FINAL so replaced rows are never returned.
type TradeStore struct {
	conn *Conn
	now  func() time.Time
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(conn *Conn) *TradeStore {
	return &TradeStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Upsert appends trades as a batch. Newer versions replace older ones on merge.
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

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trades (
			wallet, signature, block_time, direction, token_mint, token_symbol, token_name, token_logo,
			token_amount_change, native_amount, usd_value, fee, token_changes, version
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := uint64(s.now().UnixNano())
	for _, t := range trades {
		changes, err := json.Marshal(t.AllTokenChanges)
		if err != nil {
			return fmt.Errorf("encode token changes for %s: %w", t.Signature, err)
		}
		err = batch.Append(
			t.Wallet,
			t.Signature,
			t.Timestamp,
			string(t.Direction),
			t.TokenMint,
			t.TokenSymbol,
			t.TokenName,
			t.TokenLogo,
			t.TokenAmountChange,
			t.NativeAmount,
			t.USDValue,
			t.Fee,
			string(changes),
			version,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByWallet retrieves a wallet's trades ordered by block time ASC, then signature.
func (s *TradeStore) GetByWallet(ctx context.Context, wallet, mint string) (_ []*domain.Trade, err error) {
	defer observe("get_trades", time.Now(), &err)

	query := `
		SELECT wallet, signature, block_time, direction, token_mint, token_symbol, token_name, token_logo,
			token_amount_change, native_amount, usd_value, fee, token_changes
		FROM trades FINAL
		WHERE wallet = ? AND (? = '' OR token_mint = ?)
		ORDER BY block_time ASC, signature ASC
	`

	rows, err := s.conn.Query(ctx, query, wallet, mint, mint)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var (
			t         domain.Trade
			direction string
			changes   string
		)
		err := rows.Scan(
			&t.Wallet,
			&t.Signature,
			&t.Timestamp,
			&direction,
			&t.TokenMint,
			&t.TokenSymbol,
			&t.TokenName,
			&t.TokenLogo,
			&t.TokenAmountChange,
			&t.NativeAmount,
			&t.USDValue,
			&t.Fee,
			&changes,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Direction = domain.Direction(direction)
		if err := json.Unmarshal([]byte(changes), &t.AllTokenChanges); err != nil {
			return nil, fmt.Errorf("decode token changes: %w", err)
		}
		trades = append(trades, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}


package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/storage"
)

// WatermarkStore implements storage.WatermarkStore using PostgreSQL.
type WatermarkStore struct {
	pool *Pool
}

// NewWatermarkStore creates a new WatermarkStore.
func NewWatermarkStore(pool *Pool) *WatermarkStore {
	return &WatermarkStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WatermarkStore = (*WatermarkStore)(nil)

// Get retrieves the watermark for (wallet, mint). Returns ErrNotFound if not exists.
func (s *WatermarkStore) Get(ctx context.Context, wallet, mint string) (_ *domain.Watermark, err error) {
	defer observe("get_watermark", time.Now(), &err)

	query := `
		SELECT wallet, mint, last_seen_timestamp, updated_at
		FROM watermarks
		WHERE wallet = $1 AND mint = $2
	`

	var w domain.Watermark
	err = s.pool.QueryRow(ctx, query, wallet, mint).Scan(
		&w.Wallet,
		&w.Mint,
		&w.LastSeenTimestamp,
		&w.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get watermark: %w", err)
	}
	return &w, nil
}

// Set upserts w. The stored timestamp only ever increases.
func (s *WatermarkStore) Set(ctx context.Context, w *domain.Watermark) (err error) {
	if err := storage.ValidateWatermark(w); err != nil {
		return err
	}
	defer observe("set_watermark", time.Now(), &err)

	query := `
		INSERT INTO watermarks (wallet, mint, last_seen_timestamp, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet, mint) DO UPDATE SET
			last_seen_timestamp = EXCLUDED.last_seen_timestamp,
			updated_at = EXCLUDED.updated_at
		WHERE watermarks.last_seen_timestamp <= EXCLUDED.last_seen_timestamp
	`

	_, err = s.pool.Exec(ctx, query, w.Wallet, w.Mint, w.LastSeenTimestamp, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

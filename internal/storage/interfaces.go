package storage

import (
	"context"

	"solana-trade-ledger/internal/domain"
)

// WatermarkStore tracks how far back each (wallet, mint) history has been scanned.
// Mint is empty for wallet-wide scans.
type WatermarkStore interface {
	// Get returns the watermark for (wallet, mint). Returns ErrNotFound if none exists.
	Get(ctx context.Context, wallet, mint string) (*domain.Watermark, error)

	// Set stores w. A watermark never moves backwards: an older LastSeenTimestamp
	// than the stored one leaves the stored value in place.
	Set(ctx context.Context, w *domain.Watermark) error
}

// TradeStore persists classified trades keyed by (wallet, signature).
type TradeStore interface {
	// Upsert inserts trades, replacing any stored trade with the same key.
	Upsert(ctx context.Context, trades []*domain.Trade) error

	// GetByWallet returns a wallet's trades ordered by timestamp ASC, then signature.
	// A non-empty mint restricts the result to trades whose primary token is mint.
	GetByWallet(ctx context.Context, wallet, mint string) ([]*domain.Trade, error)
}

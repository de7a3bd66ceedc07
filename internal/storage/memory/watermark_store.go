package memory

import (
	"context"
	"sync"

	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/storage"
)

type watermarkKey struct {
	wallet string
	mint   string
}

// WatermarkStore is an in-memory implementation of storage.WatermarkStore.
type WatermarkStore struct {
	mu   sync.RWMutex
	data map[watermarkKey]domain.Watermark
}

// NewWatermarkStore creates a new in-memory watermark store.
func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{
		data: make(map[watermarkKey]domain.Watermark),
	}
}

// Get retrieves the watermark for (wallet, mint). Returns ErrNotFound if not exists.
func (s *WatermarkStore) Get(_ context.Context, wallet, mint string) (*domain.Watermark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.data[watermarkKey{wallet: wallet, mint: mint}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return &w, nil
}

// Set stores w unless the stored watermark is already further ahead.
func (s *WatermarkStore) Set(_ context.Context, w *domain.Watermark) error {
	if err := storage.ValidateWatermark(w); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := watermarkKey{wallet: w.Wallet, mint: w.Mint}
	if cur, exists := s.data[key]; exists && cur.LastSeenTimestamp > w.LastSeenTimestamp {
		return nil
	}
	s.data[key] = *w
	return nil
}

var _ storage.WatermarkStore = (*WatermarkStore)(nil)

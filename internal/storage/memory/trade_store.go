package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/storage"
)

type tradeKey struct {
	wallet    string
	signature string
}

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[tradeKey]*domain.Trade
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[tradeKey]*domain.Trade),
	}
}

// Upsert inserts or replaces trades. The batch is validated before any write.
func (s *TradeStore) Upsert(_ context.Context, trades []*domain.Trade) error {
	for _, t := range trades {
		if err := storage.ValidateTrade(t); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range trades {
		s.data[tradeKey{wallet: t.Wallet, signature: t.Signature}] = storage.CloneTrade(t)
	}
	return nil
}

// GetByWallet retrieves a wallet's trades ordered by timestamp ASC, then signature.
func (s *TradeStore) GetByWallet(_ context.Context, wallet, mint string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for key, t := range s.data {
		if key.wallet != wallet {
			continue
		}
		if mint != "" && t.TokenMint != mint {
			continue
		}
		result = append(result, storage.CloneTrade(t))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].Signature < result[j].Signature
	})
	return result, nil
}

// Len returns the number of stored trades.
func (s *TradeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ storage.TradeStore = (*TradeStore)(nil)

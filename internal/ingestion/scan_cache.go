package ingestion

import (
	"sync"

	"solana-trade-ledger/internal/solana"
)

// ScanCache memoises fetched transactions for the lifetime of one scan.
// A cached nil records that the transaction was not available.
type ScanCache struct {
	mu  sync.Mutex
	txs map[string]*solana.Transaction
}

// NewScanCache creates an empty cache.
func NewScanCache() *ScanCache {
	return &ScanCache{txs: make(map[string]*solana.Transaction)}
}

// Get returns the cached transaction and whether the signature was seen.
func (c *ScanCache) Get(signature string) (*solana.Transaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.txs[signature]
	return tx, ok
}

// Put stores a fetch result, nil included.
func (c *ScanCache) Put(signature string, tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[signature] = tx
}

// Len returns the number of memoised signatures.
func (c *ScanCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.txs)
}

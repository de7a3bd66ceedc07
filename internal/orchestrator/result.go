package orchestrator

import (
	"github.com/shopspring/decimal"

	"solana-trade-ledger/internal/domain"
)

// Mode is how a scan walked the wallet history.
type Mode string

const (
	// ModeFull scans the whole history.
	ModeFull Mode = "full"
	// ModeIncremental scans only history newer than the stored watermark.
	ModeIncremental Mode = "incremental"
)

// Result summarises one scan.
type Result struct {
	Wallet string `json:"wallet"`
	Mint   string `json:"mint,omitempty"`
	Mode   Mode   `json:"mode"`

	// Trades is the wallet's stored ledger after the scan, oldest first.
	Trades       []*domain.Trade `json:"trades"`
	TotalVolume  decimal.Decimal `json:"totalVolume"` // USD
	UniqueTokens int             `json:"uniqueTokens"`

	// NewTrades counts trades classified by this scan that were not already
	// in the ledger.
	NewTrades int `json:"newTrades"`
	// Partial is set when the scan stopped early on an open circuit or a
	// cancelled context.
	Partial bool `json:"partial"`
	// Cached is set when the result came from the wallet-analysis cache.
	Cached bool `json:"cached"`

	Cutoff          int64 `json:"cutoff,omitempty"`
	Accounts        int   `json:"accounts"`
	Signatures      int   `json:"signatures"`
	LastSeenUpdated int64 `json:"lastSeenUpdated,omitempty"`
}

// summarize fills the ledger totals from r.Trades.
func (r *Result) summarize() {
	total := decimal.Zero
	mints := make(map[string]struct{})
	for _, t := range r.Trades {
		total = total.Add(t.USDValue)
		mints[t.TokenMint] = struct{}{}
	}
	r.TotalVolume = total
	r.UniqueTokens = len(mints)
}

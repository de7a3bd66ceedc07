package domain

// TokenAccount is an SPL token account discovered during account graph exploration.
type TokenAccount struct {
	Mint   string
	Owner  string
	Pubkey string
}

// SignatureRef references a transaction touching an account.
type SignatureRef struct {
	Signature string
	BlockTime int64 // unix seconds, 0 if unknown
}

// Watermark separates already scanned history from history that still needs scanning.
// Mint is empty for wallet-wide scans.
type Watermark struct {
	Wallet            string
	Mint              string
	LastSeenTimestamp int64 // unix seconds
	UpdatedAt         int64 // unix ms
}

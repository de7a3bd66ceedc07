package solana

import "context"

// RPCClient defines the Solana JSON-RPC HTTP surface used by the scanner.
type RPCClient interface {
	// GetTokenAccountsByOwner lists token accounts owned by an address, filtered by mint or program.
	GetTokenAccountsByOwner(ctx context.Context, owner string, filter TokenAccountsFilter) ([]TokenAccount, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetTransaction retrieves a transaction by signature. Returns nil if not found.
	GetTransaction(ctx context.Context, signature string, encoding Encoding) (*Transaction, error)

	// GetAccountInfo retrieves account info by public key. Returns nil if not found.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}

// Transaction represents a fetched Solana transaction body.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
}

// TransactionMeta contains transaction status metadata.
type TransactionMeta struct {
	Err          interface{}
	Fee          uint64 // lamports
	PreBalances  []uint64
	PostBalances []uint64
	// Token balance lists are nil when the node omitted them.
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LogMessages       []string
}

// Failed reports whether the transaction executed with an error.
func (m *TransactionMeta) Failed() bool {
	return m != nil && m.Err != nil
}

// HasTokenBalances reports whether both pre and post token balance lists are present.
func (m *TransactionMeta) HasTokenBalances() bool {
	return m != nil && m.PreTokenBalances != nil && m.PostTokenBalances != nil
}

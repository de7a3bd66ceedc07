package solana

import "github.com/shopspring/decimal"

// Well-known program and mint addresses.
const (
	SystemProgramID    = "11111111111111111111111111111111"
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	MetaplexProgramID  = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
	WrappedSOLMint     = "So11111111111111111111111111111111111111112"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Commitment levels.
const (
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// Encoding selects the getTransaction encoding.
type Encoding string

const (
	EncodingJSONParsed Encoding = "jsonParsed"
	EncodingJSON       Encoding = "json"
	EncodingBase64     Encoding = "base64"
)

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before     string // Start searching backwards from this signature
	Until      string // Search until this signature
	Limit      int    // Maximum number of signatures to return
	Commitment string
}

// TokenAccountsFilter selects accounts by mint or by owning token program.
// Exactly one of Mint and ProgramID should be set.
type TokenAccountsFilter struct {
	Mint      string
	ProgramID string
}

// TokenAccount is a parsed SPL token account from getTokenAccountsByOwner.
type TokenAccount struct {
	Pubkey string
	Mint   string
	Owner  string
	Amount decimal.Decimal
}

// TokenBalance is one entry of pre/postTokenBalances.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	ProgramID    string
	UIAmount     decimal.Decimal
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// LamportsToSOL converts a lamport amount to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.New(int64(lamports), -9)
}

package domain

import "github.com/shopspring/decimal"

// Direction is the side of a classified trade, seen from the wallet.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is a valid value.
func (d Direction) IsValid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// TokenChange is a net token balance delta of one (account index, mint) pair.
type TokenChange struct {
	AccountIndex int             `json:"accountIndex"`
	Mint         string          `json:"mint"`
	Owner        string          `json:"owner"`
	Change       decimal.Decimal `json:"change"`
	Symbol       string          `json:"symbol,omitempty"`
}

// Trade is one classified buy or sell, the canonical ledger unit.
// Keyed by (Wallet, Signature). Never mutated after creation.
type Trade struct {
	Wallet            string          `json:"wallet"`
	Signature         string          `json:"signature"`
	Timestamp         int64           `json:"timestamp"` // unix seconds
	Direction         Direction       `json:"direction"`
	TokenMint         string          `json:"tokenMint"`
	TokenSymbol       string          `json:"tokenSymbol"`
	TokenName         string          `json:"tokenName"`
	TokenLogo         *string         `json:"tokenLogo"`
	TokenAmountChange decimal.Decimal `json:"tokenAmountChange"`
	NativeAmount      decimal.Decimal `json:"nativeAmount"` // SOL, fee-adjusted, signed
	USDValue          decimal.Decimal `json:"usdValue"`
	Fee               decimal.Decimal `json:"fee"` // SOL
	AllTokenChanges   []TokenChange   `json:"allTokenChanges"`
}

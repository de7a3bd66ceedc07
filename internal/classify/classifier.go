// Package classify turns fetched transactions into BUY/SELL trades by diffing
// token and native balances. Classification is a pure function of its input.
package classify

import (
	"github.com/shopspring/decimal"

	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/solana"
)

// Reason explains a classification outcome.
type Reason string

const (
	ReasonTrade              Reason = "trade"
	ReasonNoTokenBalances    Reason = "no_token_balances"
	ReasonNoTokenChange      Reason = "no_token_change"
	ReasonNoNativeBalances   Reason = "no_native_balances"
	ReasonInsufficientNative Reason = "insufficient_native_movement"
)

// DefaultMinNativeChange is the minimum |SOL| movement for a trade.
var DefaultMinNativeChange = decimal.New(1, -4)

// Classifier detects trades from balance deltas.
type Classifier struct {
	dust            decimal.Decimal
	minNativeChange decimal.Decimal
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithDust overrides the token dust threshold.
func WithDust(d decimal.Decimal) Option {
	return func(c *Classifier) {
		c.dust = d
	}
}

// WithMinNativeChange overrides the native movement threshold.
func WithMinNativeChange(d decimal.Decimal) Option {
	return func(c *Classifier) {
		c.minNativeChange = d
	}
}

// New creates a Classifier using TradeDust and DefaultMinNativeChange.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		dust:            TradeDust,
		minNativeChange: DefaultMinNativeChange,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the trade represented by tx from wallet's point of view,
// or nil and the reason it is not one.
//
// With an empty targetMint the primary change is the largest-magnitude
// surviving delta, first one winning ties. With a targetMint only entries for
// that mint are considered and they are summed into a single change.
// Metadata and pricing are left empty for the caller to fill in.
func (c *Classifier) Classify(tx *solana.Transaction, wallet, targetMint string) (*domain.Trade, Reason) {
	if tx == nil || !tx.Meta.HasTokenBalances() {
		return nil, ReasonNoTokenBalances
	}

	var changes []domain.TokenChange
	if targetMint == "" {
		changes = BalanceDiffs(tx, c.dust)
	} else {
		changes = c.scopedChange(tx.Meta, targetMint)
	}
	if len(changes) == 0 {
		return nil, ReasonNoTokenChange
	}

	primary := changes[0]
	for _, ch := range changes[1:] {
		if ch.Change.Abs().GreaterThan(primary.Change.Abs()) {
			primary = ch
		}
	}

	native, ok := NativeChange(tx.Meta)
	if !ok {
		return nil, ReasonNoNativeBalances
	}
	if native.Abs().LessThan(c.minNativeChange) {
		return nil, ReasonInsufficientNative
	}

	direction := domain.DirectionSell
	if native.IsNegative() {
		direction = domain.DirectionBuy
	}

	return &domain.Trade{
		Wallet:            wallet,
		Signature:         tx.Signature,
		Timestamp:         tx.BlockTime,
		Direction:         direction,
		TokenMint:         primary.Mint,
		TokenAmountChange: primary.Change,
		NativeAmount:      native,
		USDValue:          decimal.Zero,
		Fee:               solana.LamportsToSOL(tx.Meta.Fee),
		AllTokenChanges:   changes,
	}, ReasonTrade
}

// scopedChange sums every target-mint entry into one change and applies the
// dust threshold to the sum.
func (c *Classifier) scopedChange(meta *solana.TransactionMeta, targetMint string) []domain.TokenChange {
	var (
		sum   decimal.Decimal
		first *mergedBalance
	)
	for _, m := range mergeBalances(meta) {
		if m.key.mint != targetMint || excluded(m) {
			continue
		}
		if first == nil {
			first = m
		}
		sum = sum.Add(m.post.Sub(m.pre))
	}
	if first == nil || sum.Abs().LessThan(c.dust) {
		return nil
	}
	return []domain.TokenChange{{
		AccountIndex: first.key.accountIndex,
		Mint:         targetMint,
		Owner:        first.owner,
		Change:       sum,
	}}
}

package classify

import (
	"github.com/shopspring/decimal"

	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/solana"
)

// Dust thresholds used by the two call sites that diff token balances.
var (
	// TradeDust is the minimum |delta| for a token change to take part in trade classification.
	TradeDust = decimal.New(1, -3)
	// BalanceDiffDust is the minimum |delta| reported by BalanceDiffs.
	BalanceDiffDust = decimal.New(1, -6)
)

type balanceKey struct {
	accountIndex int
	mint         string
}

type mergedBalance struct {
	key   balanceKey
	owner string
	pre   decimal.Decimal
	post  decimal.Decimal
}

// mergeBalances joins pre and post token balances by (account index, mint)
// in order of first appearance. A side missing from one list counts as zero.
func mergeBalances(meta *solana.TransactionMeta) []*mergedBalance {
	index := make(map[balanceKey]*mergedBalance)
	var order []*mergedBalance

	entry := func(b solana.TokenBalance) *mergedBalance {
		k := balanceKey{accountIndex: b.AccountIndex, mint: b.Mint}
		m, ok := index[k]
		if !ok {
			m = &mergedBalance{key: k}
			index[k] = m
			order = append(order, m)
		}
		if b.Owner != "" {
			m.owner = b.Owner
		}
		return m
	}

	for _, b := range meta.PreTokenBalances {
		entry(b).pre = b.UIAmount
	}
	for _, b := range meta.PostTokenBalances {
		entry(b).post = b.UIAmount
	}
	return order
}

// excluded reports balances that never represent the traded token.
func excluded(m *mergedBalance) bool {
	return m.key.mint == solana.WrappedSOLMint || m.owner == solana.SystemProgramID
}

// BalanceDiffs returns the net token deltas of tx whose magnitude is at least
// dust, in order of first appearance. Wrapped SOL and system-owned entries are
// left out. Returns nil when tx carries no token balance lists.
func BalanceDiffs(tx *solana.Transaction, dust decimal.Decimal) []domain.TokenChange {
	if tx == nil || !tx.Meta.HasTokenBalances() {
		return nil
	}

	var changes []domain.TokenChange
	for _, m := range mergeBalances(tx.Meta) {
		if excluded(m) {
			continue
		}
		change := m.post.Sub(m.pre)
		if change.Abs().LessThan(dust) {
			continue
		}
		changes = append(changes, domain.TokenChange{
			AccountIndex: m.key.accountIndex,
			Mint:         m.key.mint,
			Owner:        m.owner,
			Change:       change,
		})
	}
	return changes
}

// NativeChange returns the fee payer's SOL movement with the fee added back,
// (post[0] - pre[0] + fee) / 1e9. ok is false when lamport balances are absent.
func NativeChange(meta *solana.TransactionMeta) (change decimal.Decimal, ok bool) {
	if meta == nil || len(meta.PreBalances) == 0 || len(meta.PostBalances) == 0 {
		return decimal.Zero, false
	}
	change = solana.LamportsToSOL(meta.PostBalances[0]).
		Sub(solana.LamportsToSOL(meta.PreBalances[0])).
		Add(solana.LamportsToSOL(meta.Fee))
	return change, true
}

package ingestion

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/observability"
	"solana-trade-ledger/internal/resilience"
	"solana-trade-ledger/internal/solana"
)

// DefaultTokenPrograms are queried during full discovery.
var DefaultTokenPrograms = []string{solana.TokenProgramID, solana.Token2022ProgramID}

// Discovery is the result of account graph exploration.
type Discovery struct {
	// Accounts holds the wallet root and every discovered token account, sorted.
	Accounts []string
	// TokenAccounts holds the discovered token accounts in discovery order.
	TokenAccounts []domain.TokenAccount
}

// AccountExplorer discovers token accounts reachable from a wallet.
type AccountExplorer struct {
	rpc      solana.RPCClient
	exec     *resilience.Executor
	programs []string
	log      zerolog.Logger
}

// NewAccountExplorer creates an explorer. Empty programs means DefaultTokenPrograms.
func NewAccountExplorer(rpc solana.RPCClient, exec *resilience.Executor, programs []string, log zerolog.Logger) *AccountExplorer {
	if len(programs) == 0 {
		programs = DefaultTokenPrograms
	}
	return &AccountExplorer{
		rpc:      rpc,
		exec:     exec,
		programs: programs,
		log:      log.With().Str("component", "explorer").Logger(),
	}
}

// Discover walks the ownership graph breadth-first from wallet.
//
// With a non-empty mint each account is queried once with a mint filter;
// otherwise once per configured token program. Per-account failures are
// logged and skipped. A circuit-open or context error stops exploration and
// is returned together with everything discovered so far.
func (e *AccountExplorer) Discover(ctx context.Context, wallet, mint string) (*Discovery, error) {
	queue := []string{wallet}
	processed := make(map[string]struct{})
	discovered := map[string]struct{}{wallet: {}}
	result := &Discovery{}

	var stopErr error
	for len(queue) > 0 && stopErr == nil {
		account := queue[0]
		queue = queue[1:]
		if _, ok := processed[account]; ok {
			continue
		}
		processed[account] = struct{}{}

		for _, filter := range e.filters(mint) {
			accounts, err := resilience.Call(ctx, e.exec, "getTokenAccountsByOwner",
				func(ctx context.Context) ([]solana.TokenAccount, error) {
					return e.rpc.GetTokenAccountsByOwner(ctx, account, filter)
				})
			if err != nil {
				if resilience.IsCircuitOpen(err) || ctx.Err() != nil {
					stopErr = err
					break
				}
				e.log.Warn().Err(err).
					Str("account", account).
					Str("program", filter.ProgramID).
					Msg("token account lookup failed, skipping")
				continue
			}

			for _, acc := range accounts {
				if _, ok := discovered[acc.Pubkey]; ok {
					continue
				}
				discovered[acc.Pubkey] = struct{}{}
				result.TokenAccounts = append(result.TokenAccounts, domain.TokenAccount{
					Mint:   acc.Mint,
					Owner:  acc.Owner,
					Pubkey: acc.Pubkey,
				})
				queue = append(queue, acc.Pubkey)
			}
		}
	}

	result.Accounts = make([]string, 0, len(discovered))
	for pubkey := range discovered {
		result.Accounts = append(result.Accounts, pubkey)
	}
	sort.Strings(result.Accounts)

	observability.RecordAccountsDiscovered(len(result.TokenAccounts))
	e.log.Debug().
		Str("wallet", wallet).
		Int("token_accounts", len(result.TokenAccounts)).
		Bool("truncated", stopErr != nil).
		Msg("account discovery finished")

	return result, stopErr
}

func (e *AccountExplorer) filters(mint string) []solana.TokenAccountsFilter {
	if mint != "" {
		return []solana.TokenAccountsFilter{{Mint: mint}}
	}
	filters := make([]solana.TokenAccountsFilter, len(e.programs))
	for i, program := range e.programs {
		filters[i] = solana.TokenAccountsFilter{ProgramID: program}
	}
	return filters
}

package pricing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"solana-trade-ledger/internal/cache"
	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/observability"
	"solana-trade-ledger/internal/resilience"
	"solana-trade-ledger/internal/solana"
)

const (
	priceKindToken = "token"
	tokenListKey   = "all"
)

// Token info sources, in resolution order.
const (
	SourceWrappedSOL  = "wrapped_sol"
	SourceCache       = "cache"
	SourceDirect      = "direct"
	SourceList        = "list"
	SourceOnChain     = "onchain"
	SourcePlaceholder = "placeholder"
)

// TokenInfoConfig configures the token metadata endpoint.
type TokenInfoConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// DefaultTokenInfoConfig returns the public token API settings.
func DefaultTokenInfoConfig() TokenInfoConfig {
	return TokenInfoConfig{BaseURL: "https://tokens.jup.ag"}
}

// TokenListing is one entry of the token API. The bulk list always carries
// Address; lookups by mint may omit it.
type TokenListing struct {
	Address string  `json:"address"`
	Symbol  string  `json:"symbol" validate:"required"`
	Name    string  `json:"name"`
	LogoURI *string `json:"logoURI"`
}

func (l TokenListing) info() domain.TokenInfo {
	name := l.Name
	if name == "" {
		name = l.Symbol
	}
	return domain.TokenInfo{Symbol: l.Symbol, Name: name, LogoURI: l.LogoURI}
}

// wrappedSOLInfo is returned for the wrapped native mint without any lookup.
var wrappedSOLInfo = domain.TokenInfo{Symbol: "SOL", Name: "Wrapped SOL"}

// TokenInfoResolver resolves display metadata for a mint: direct lookup, then
// the cached bulk listing, then on-chain Metaplex metadata, then a placeholder.
// Whatever is resolved is cached.
type TokenInfoResolver struct {
	cfg      TokenInfoConfig
	exec     *resilience.Executor
	infos    *cache.Typed[domain.TokenInfo]
	listings *cache.Typed[[]TokenListing]
	validate *validator.Validate
	opts     options

	rpc     solana.RPCClient
	rpcExec *resilience.Executor
}

// NewTokenInfoResolver creates a resolver. exec should be guarded by the
// token endpoint breaker.
func NewTokenInfoResolver(cfg TokenInfoConfig, exec *resilience.Executor, infos *cache.Typed[domain.TokenInfo], listings *cache.Typed[[]TokenListing], opts ...Option) *TokenInfoResolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTokenInfoConfig().BaseURL
	}
	return &TokenInfoResolver{
		cfg:      cfg,
		exec:     exec,
		infos:    infos,
		listings: listings,
		validate: validator.New(),
		opts:     newOptions(opts),
	}
}

// WithOnChainMetadata enables the Metaplex fallback through the RPC endpoint.
func (r *TokenInfoResolver) WithOnChainMetadata(rpc solana.RPCClient, exec *resilience.Executor) *TokenInfoResolver {
	r.rpc = rpc
	r.rpcExec = exec
	return r
}

// Resolve returns display metadata for mint. It never fails; unknown mints
// resolve to domain.PlaceholderTokenInfo.
func (r *TokenInfoResolver) Resolve(ctx context.Context, mint string) domain.TokenInfo {
	info, _ := r.ResolveWithSource(ctx, mint)
	return info
}

// ResolveWithSource is Resolve that also reports which layer answered.
func (r *TokenInfoResolver) ResolveWithSource(ctx context.Context, mint string) (domain.TokenInfo, string) {
	if mint == solana.WrappedSOLMint {
		return wrappedSOLInfo, SourceWrappedSOL
	}

	log := r.opts.log.With().Str("mint", mint).Logger()

	if info, ok, err := r.infos.Get(ctx, mint); err != nil {
		log.Warn().Err(err).Msg("token info cache read failed")
	} else if ok {
		observability.RecordPriceLookup(priceKindToken, SourceCache)
		return info, SourceCache
	}

	info, source := r.lookup(ctx, mint, log)
	if ctx.Err() != nil {
		return info, source
	}
	observability.RecordPriceLookup(priceKindToken, source)
	if source == SourcePlaceholder {
		observability.RecordPriceFallback(priceKindToken)
	}

	if err := r.infos.Set(ctx, mint, info); err != nil {
		log.Warn().Err(err).Msg("token info cache write failed")
	}
	return info, source
}

func (r *TokenInfoResolver) lookup(ctx context.Context, mint string, log zerolog.Logger) (domain.TokenInfo, string) {
	listing, err := r.direct(ctx, mint)
	if err == nil {
		return listing.info(), SourceDirect
	}
	log.Debug().Err(err).Msg("direct token lookup failed")

	listing, err = r.fromList(ctx, mint)
	if err == nil && listing != nil {
		return listing.info(), SourceList
	}
	if err != nil {
		log.Debug().Err(err).Msg("token list lookup failed")
	}

	if r.rpc != nil {
		meta, err := r.onChain(ctx, mint)
		if err == nil {
			info := domain.TokenInfo{Symbol: meta.Symbol, Name: meta.Name}
			if info.Symbol == "" {
				info.Symbol = domain.PlaceholderTokenInfo(mint).Symbol
			}
			if info.Name == "" {
				info.Name = info.Symbol
			}
			return info, SourceOnChain
		}
		log.Debug().Err(err).Msg("on-chain metadata lookup failed")
	}

	log.Info().Msg("token metadata unresolved, using placeholder")
	return domain.PlaceholderTokenInfo(mint), SourcePlaceholder
}

func (r *TokenInfoResolver) direct(ctx context.Context, mint string) (*TokenListing, error) {
	endpoint := fmt.Sprintf("%s/token/%s", strings.TrimRight(r.cfg.BaseURL, "/"), url.PathEscape(mint))
	listing, err := resilience.Call(ctx, r.exec, "token_info", func(ctx context.Context) (*TokenListing, error) {
		var out TokenListing
		if err := getJSON(ctx, r.opts.client, endpoint, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	if err := r.validate.Struct(listing); err != nil {
		return nil, fmt.Errorf("invalid token listing: %w", err)
	}
	if listing.Address != "" && listing.Address != mint {
		return nil, fmt.Errorf("token listing for %s returned %s", mint, listing.Address)
	}
	return listing, nil
}

// fromList searches the bulk listing, fetching and caching it on a miss.
// Returns nil without error when mint is not listed.
func (r *TokenInfoResolver) fromList(ctx context.Context, mint string) (*TokenListing, error) {
	list, ok, err := r.listings.Get(ctx, tokenListKey)
	if err != nil {
		r.opts.log.Warn().Err(err).Msg("token list cache read failed")
	}
	if !ok {
		list, err = r.fetchList(ctx)
		if err != nil {
			return nil, err
		}
		if err := r.listings.Set(ctx, tokenListKey, list); err != nil {
			r.opts.log.Warn().Err(err).Msg("token list cache write failed")
		}
	}

	for i := range list {
		if list[i].Address == mint {
			return &list[i], nil
		}
	}
	return nil, nil
}

func (r *TokenInfoResolver) fetchList(ctx context.Context) ([]TokenListing, error) {
	endpoint := strings.TrimRight(r.cfg.BaseURL, "/") + "/tokens"
	list, err := resilience.Call(ctx, r.exec, "token_list", func(ctx context.Context) ([]TokenListing, error) {
		var out []TokenListing
		if err := getJSON(ctx, r.opts.client, endpoint, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	valid := list[:0]
	for _, l := range list {
		if l.Address != "" && r.validate.Struct(l) == nil {
			valid = append(valid, l)
		}
	}
	return valid, nil
}

func (r *TokenInfoResolver) onChain(ctx context.Context, mint string) (*onChainMetadata, error) {
	pda, err := solana.MetadataAddress(mint)
	if err != nil {
		return nil, fmt.Errorf("derive metadata address: %w", err)
	}

	account, err := resilience.Call(ctx, r.rpcExec, "getAccountInfo", func(ctx context.Context) (*solana.AccountInfo, error) {
		return r.rpc.GetAccountInfo(ctx, pda)
	})
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("metadata account %s not found", pda)
	}
	if account.Owner != "" && account.Owner != solana.MetaplexProgramID {
		return nil, fmt.Errorf("metadata account %s owned by %s", pda, account.Owner)
	}
	return parseMetadataAccount(account.Data)
}

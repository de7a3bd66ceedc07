package stub

import (
	"context"
	"sync"

	"solana-trade-ledger/internal/solana"
)

// Method names used as keys for call counters and injected errors.
const (
	MethodGetTokenAccountsByOwner = "getTokenAccountsByOwner"
	MethodGetSignaturesForAddress = "getSignaturesForAddress"
	MethodGetTransaction          = "getTransaction"
	MethodGetAccountInfo          = "getAccountInfo"
)

// RPCClient implements solana.RPCClient for testing.
// Signatures are stored newest-first and served with before/limit
// pagination the way a real node does.
type RPCClient struct {
	mu sync.Mutex

	Transactions      map[string]*solana.Transaction
	Signatures        map[string][]solana.SignatureInfo
	TokenAccounts     map[string][]solana.TokenAccount // SPL Token, keyed by owner
	Token2022Accounts map[string][]solana.TokenAccount // Token-2022, keyed by owner
	Accounts          map[string]*solana.AccountInfo

	// errs holds queued errors per method, consumed one per call.
	errs map[string][]error
	// TransactionErrs fails getTransaction for a signature and encoding.
	TransactionErrs map[string]map[solana.Encoding]error

	calls      map[string]int
	sigOpts    []solana.SignaturesOpts
	encodings  []solana.Encoding
	tokenCalls []TokenAccountsCall
}

// TokenAccountsCall records one getTokenAccountsByOwner invocation.
type TokenAccountsCall struct {
	Owner  string
	Filter solana.TokenAccountsFilter
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:      make(map[string]*solana.Transaction),
		Signatures:        make(map[string][]solana.SignatureInfo),
		TokenAccounts:     make(map[string][]solana.TokenAccount),
		Token2022Accounts: make(map[string][]solana.TokenAccount),
		Accounts:          make(map[string]*solana.AccountInfo),
		errs:              make(map[string][]error),
		TransactionErrs:   make(map[string]map[solana.Encoding]error),
		calls:             make(map[string]int),
	}
}

// next records a call and pops a queued error for method, if any.
func (c *RPCClient) next(method string) error {
	c.calls[method]++
	queue := c.errs[method]
	if len(queue) == 0 {
		return nil
	}
	c.errs[method] = queue[1:]
	return queue[0]
}

// GetTokenAccountsByOwner returns stored accounts for owner matching the filter.
func (c *RPCClient) GetTokenAccountsByOwner(_ context.Context, owner string, filter solana.TokenAccountsFilter) ([]solana.TokenAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokenCalls = append(c.tokenCalls, TokenAccountsCall{Owner: owner, Filter: filter})
	if err := c.next(MethodGetTokenAccountsByOwner); err != nil {
		return nil, err
	}

	source := c.TokenAccounts[owner]
	if filter.Mint == "" && filter.ProgramID == solana.Token2022ProgramID {
		source = c.Token2022Accounts[owner]
	}
	if filter.Mint != "" {
		source = append(append([]solana.TokenAccount(nil), source...), c.Token2022Accounts[owner]...)
	}

	var out []solana.TokenAccount
	for _, acc := range source {
		if filter.Mint != "" && acc.Mint != filter.Mint {
			continue
		}
		out = append(out, acc)
	}
	return out, nil
}

// GetSignaturesForAddress pages through stored signatures for an address.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if opts != nil {
		c.sigOpts = append(c.sigOpts, *opts)
	} else {
		c.sigOpts = append(c.sigOpts, solana.SignaturesOpts{})
	}
	if err := c.next(MethodGetSignaturesForAddress); err != nil {
		return nil, err
	}

	sigs := c.Signatures[address]
	start := 0
	if opts != nil && opts.Before != "" {
		start = len(sigs)
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}
	end := len(sigs)
	if opts != nil && opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	if start >= end {
		return []solana.SignatureInfo{}, nil
	}

	page := make([]solana.SignatureInfo, end-start)
	copy(page, sigs[start:end])
	return page, nil
}

// GetTransaction retrieves a transaction by signature. Unknown signatures return nil.
func (c *RPCClient) GetTransaction(_ context.Context, signature string, encoding solana.Encoding) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.encodings = append(c.encodings, encoding)
	if err := c.next(MethodGetTransaction); err != nil {
		return nil, err
	}
	if err := c.TransactionErrs[signature][encoding]; err != nil {
		return nil, err
	}
	return c.Transactions[signature], nil
}

// GetAccountInfo retrieves stored account info. Unknown accounts return nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.next(MethodGetAccountInfo); err != nil {
		return nil, err
	}
	return c.Accounts[pubkey], nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures appends signatures for an address. Callers add them newest-first.
func (c *RPCClient) AddSignatures(address string, sigs ...solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = append(c.Signatures[address], sigs...)
}

// AddTokenAccounts registers token accounts owned by owner.
func (c *RPCClient) AddTokenAccounts(owner string, accounts ...solana.TokenAccount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenAccounts[owner] = append(c.TokenAccounts[owner], accounts...)
}

// AddToken2022Accounts registers Token-2022 accounts owned by owner.
func (c *RPCClient) AddToken2022Accounts(owner string, accounts ...solana.TokenAccount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Token2022Accounts[owner] = append(c.Token2022Accounts[owner], accounts...)
}

// AddAccount registers account info for a pubkey.
func (c *RPCClient) AddAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

// FailNext queues errors returned by the next calls to method, in order.
func (c *RPCClient) FailNext(method string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[method] = append(c.errs[method], errs...)
}

// FailTransaction makes getTransaction fail for signature with the given encoding.
func (c *RPCClient) FailTransaction(signature string, encoding solana.Encoding, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.TransactionErrs[signature] == nil {
		c.TransactionErrs[signature] = make(map[solana.Encoding]error)
	}
	c.TransactionErrs[signature][encoding] = err
}

// Calls returns how many times method was invoked.
func (c *RPCClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// SignatureRequests returns the options of every getSignaturesForAddress call.
func (c *RPCClient) SignatureRequests() []solana.SignaturesOpts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]solana.SignaturesOpts(nil), c.sigOpts...)
}

// TransactionEncodings returns the encoding of every getTransaction call.
func (c *RPCClient) TransactionEncodings() []solana.Encoding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]solana.Encoding(nil), c.encodings...)
}

// TokenAccountCalls returns every getTokenAccountsByOwner invocation.
func (c *RPCClient) TokenAccountCalls() []TokenAccountsCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TokenAccountsCall(nil), c.tokenCalls...)
}

var _ solana.RPCClient = (*RPCClient)(nil)

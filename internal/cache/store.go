// Package cache is the TTL cache service shared by the scanner and the price
// resolvers. A Store holds raw bytes; Typed layers a JSON-encoded value type
// and a per-kind namespace and TTL on top of it.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by a Store after Close.
var ErrClosed = errors.New("cache closed")

// Store is a byte-level key/value backend with per-entry expiry.
type Store interface {
	// Get returns the value for key. ok is false when absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key starting with prefix. An empty prefix
	// clears the store.
	DeletePrefix(ctx context.Context, prefix string) error

	Close() error
}

// Kind is a cache namespace with its own TTL.
type Kind struct {
	Name string
	TTL  time.Duration
}

// Cache kinds used by the scanner and the price resolvers.
var (
	WalletAnalysis = Kind{Name: "wallet-analysis", TTL: 5 * time.Minute}
	NativePrice    = Kind{Name: "native-price", TTL: time.Hour}
	TokenInfo      = Kind{Name: "token-info"}
	TokenList      = Kind{Name: "token-list", TTL: 6 * time.Hour}
)

// Kinds lists every namespace in use.
func Kinds() []Kind {
	return []Kind{WalletAnalysis, NativePrice, TokenInfo, TokenList}
}

// Prefix returns the key prefix shared by all entries of k.
func (k Kind) Prefix() string {
	return k.Name + ":"
}

// Key returns the namespaced store key for id.
func (k Kind) Key(id string) string {
	return k.Prefix() + id
}

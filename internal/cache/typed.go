package cache

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"solana-trade-ledger/internal/observability"
)

// Typed stores JSON-encoded values of type V under one Kind.
type Typed[V any] struct {
	store Store
	kind  Kind
}

// NewTyped binds a value type to a kind on store.
func NewTyped[V any](store Store, kind Kind) *Typed[V] {
	return &Typed[V]{store: store, kind: kind}
}

// Kind returns the namespace of c.
func (c *Typed[V]) Kind() Kind {
	return c.kind
}

// Get returns the cached value for id. ok is false on a miss.
// An undecodable entry is treated as a miss and removed.
func (c *Typed[V]) Get(ctx context.Context, id string) (V, bool, error) {
	var zero V

	raw, ok, err := c.store.Get(ctx, c.kind.Key(id))
	if err != nil {
		return zero, false, fmt.Errorf("cache %s get: %w", c.kind.Name, err)
	}
	if !ok {
		observability.RecordCacheLookup(c.kind.Name, false)
		return zero, false, nil
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		_ = c.store.Delete(ctx, c.kind.Key(id))
		observability.RecordCacheLookup(c.kind.Name, false)
		return zero, false, nil
	}
	observability.RecordCacheLookup(c.kind.Name, true)
	return v, true, nil
}

// Set stores v under id with the kind's TTL.
func (c *Typed[V]) Set(ctx context.Context, id string, v V) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache %s encode: %w", c.kind.Name, err)
	}
	if err := c.store.Set(ctx, c.kind.Key(id), raw, c.kind.TTL); err != nil {
		return fmt.Errorf("cache %s set: %w", c.kind.Name, err)
	}
	return nil
}

// Delete removes id.
func (c *Typed[V]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.kind.Key(id))
}

// DeletePrefix removes every id starting with prefix.
func (c *Typed[V]) DeletePrefix(ctx context.Context, prefix string) error {
	return c.store.DeletePrefix(ctx, c.kind.Key(prefix))
}

// Clear removes every entry of the kind.
func (c *Typed[V]) Clear(ctx context.Context) error {
	return c.store.DeletePrefix(ctx, c.kind.Prefix())
}

// ClearAll removes every entry of every known kind from store.
func ClearAll(ctx context.Context, store Store) error {
	for _, k := range Kinds() {
		if err := store.DeletePrefix(ctx, k.Prefix()); err != nil {
			return fmt.Errorf("clear %s: %w", k.Name, err)
		}
	}
	return nil
}

// Package storage defines the durable key-value slots that back shopper state.
package storage

import (
	"context"
	"strings"
)

// Slot names persisted for every shopper.
const (
	SlotCart     = "cart"
	SlotWishlist = "wishlist"
)

// Storage is a string-keyed blob store. Get returns an error wrapping
// errors.ErrNotFound from pkg/errors when the key is absent.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Swapper is implemented by backends that several processes share. A store
// over a Swapper re-reads a slot before every write and commits only if no
// other writer got there first.
type Swapper interface {
	Storage

	// CompareAndSwap writes value when key still holds old. A nil old means
	// the key must be absent. It reports false when the key had changed.
	CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error)
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Namespaced prefixes every key with a fixed scope such as a session ID.
type Namespaced struct {
	inner  Storage
	prefix string
}

type namespacedSwapper struct {
	*Namespaced
	swap Swapper
}

// Namespace returns a view of s where key k is stored as "<prefix>:<k>".
// The view is a Swapper whenever s is.
func Namespace(s Storage, prefix string) Storage {
	ns := &Namespaced{inner: s, prefix: strings.TrimSuffix(prefix, ":") + ":"}
	if sw, ok := s.(Swapper); ok {
		return &namespacedSwapper{Namespaced: ns, swap: sw}
	}
	return ns
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

func (n *namespacedSwapper) CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error) {
	return n.swap.CompareAndSwap(ctx, n.prefix+key, old, value)
}

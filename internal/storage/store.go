// Package storage is the key-value persistence behind identity, favorites and
// remote cookies. Values are opaque bytes; callers own the encoding.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a byte-value key store. Get returns ErrNotFound for missing keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Lister enumerates keys. Backends shared between processes implement it so
// the worker can find every visitor's session.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ListStore is a Store that can also list its keys.
type ListStore interface {
	Store
	Lister
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}

// Close closes s when the backend holds resources.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

// Namespaced scopes every key under a prefix.
type Namespaced struct {
	inner  Store
	prefix string
}

// Namespace returns a view of s where key k is stored as prefix+"/"+k.
func Namespace(s Store, prefix string) *Namespaced {
	prefix = strings.TrimSuffix(prefix, "/")
	return &Namespaced{inner: s, prefix: prefix + "/"}
}

func (n *Namespaced) Prefix() string { return n.prefix }

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Put(ctx context.Context, key string, value []byte) error {
	return n.inner.Put(ctx, n.prefix+key, value)
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

// Keys lists keys under the namespace with the prefix stripped. It fails
// when the underlying store cannot list.
func (n *Namespaced) Keys(ctx context.Context, prefix string) ([]string, error) {
	l, ok := n.inner.(Lister)
	if !ok {
		return nil, ErrNotListable
	}
	keys, err := l.Keys(ctx, n.prefix+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, n.prefix))
	}
	return out, nil
}

// ErrNotListable is returned by Namespaced.Keys over a store without Keys.
var ErrNotListable = errors.New("storage: backend cannot list keys")

package workspace

import (
	"context"
	"sync"

	"github.com/briangreenhill/buddy/cache"
)

// OpenFunc builds the workspace for a visitor id.
type OpenFunc func(ctx context.Context, visitorID string) (*Workspace, error)

// Registry keeps the most recently used workspaces open. An evicted
// workspace is closed; its state stays in storage and is rehydrated the
// next time the visitor shows up.
type Registry struct {
	open OpenFunc
	lru  *cache.LRU[string, *Workspace]

	mu sync.Mutex
}

// NewRegistry keeps at most size workspaces open, closing the least recently used.
func NewRegistry(size int, open OpenFunc) (*Registry, error) {
	lru, err := cache.NewLRU[string, *Workspace]("workspaces", size, func(_ string, w *Workspace) {
		w.Close()
	})
	if err != nil {
		return nil, err
	}
	return &Registry{open: open, lru: lru}, nil
}

// Get returns the visitor's workspace, opening and starting it on first use.
func (r *Registry) Get(ctx context.Context, visitorID string) (*Workspace, error) {
	if w, ok := r.lru.Get(visitorID); ok {
		return w, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.lru.Peek(visitorID); ok {
		return w, nil
	}
	w, err := r.open(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	w.Start(ctx)
	r.lru.Add(visitorID, w)
	return w, nil
}

// Drop closes and forgets the visitor's workspace.
func (r *Registry) Drop(visitorID string) {
	r.lru.Remove(visitorID)
}

func (r *Registry) Len() int { return r.lru.Len() }

// Close closes every open workspace.
func (r *Registry) Close() { r.lru.Purge() }

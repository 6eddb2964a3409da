package query

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/briangreenhill/buddy/cache"
	"github.com/briangreenhill/buddy/fetch"
)

// Remote is the part of the fetch client the engine needs.
type Remote interface {
	Breeds(ctx context.Context) ([]string, error)
	SearchDogs(ctx context.Context, p fetch.SearchParams) (*fetch.SearchResponse, error)
	Dogs(ctx context.Context, ids []string) ([]fetch.Dog, error)
}

// Result is one resolved page.
type Result struct {
	Key        Key
	IDs        []string
	Dogs       []fetch.Dog
	Total      int
	TotalPages int
	Next       string
	Prev       string
}

func (r *Result) clone() *Result {
	out := *r
	out.IDs = append([]string(nil), r.IDs...)
	out.Dogs = append([]fetch.Dog(nil), r.Dogs...)
	return &out
}

// QueryError is a failed query. The engine keeps no partial result for it.
type QueryError struct {
	Key string
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("query %s failed: %v", e.Key, e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

// DefaultCacheSize is how many pages an engine keeps unless told otherwise.
const DefaultCacheSize = 256

const breedsFlight = "\x00breeds"

// Engine answers queries from a bounded cache in front of the remote
// service and collapses identical in-flight queries into one.
type Engine struct {
	remote  Remote
	results *cache.LRU[string, *Result]
	group   singleflight.Group
	log     zerolog.Logger

	size int
	name string

	mu     sync.RWMutex
	breeds []string
	// gen counts purges; fetches started before one never fill the cache.
	gen uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithCacheSize bounds the number of cached pages.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.size = n
		}
	}
}

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithCacheName labels the result cache's metrics.
func WithCacheName(name string) Option {
	return func(e *Engine) { e.name = name }
}

// NewEngine builds an engine over remote.
func NewEngine(remote Remote, opts ...Option) (*Engine, error) {
	e := &Engine{remote: remote, size: DefaultCacheSize, name: "query", log: zerolog.Nop()}
	for _, o := range opts {
		o(e)
	}
	results, err := cache.NewLRU[string, *Result](e.name, e.size, nil)
	if err != nil {
		return nil, err
	}
	e.results = results
	return e, nil
}

// Query returns the page for key. Concurrent calls for the same key share a
// single remote round trip. The shared fetch is detached from ctx: a caller
// that gives up returns ctx.Err() while the fetch finishes and fills the
// cache for whoever asks next.
func (e *Engine) Query(ctx context.Context, key Key) (*Result, error) {
	k := key.String()
	if r, ok := e.results.Get(k); ok {
		return r.clone(), nil
	}

	detached := context.WithoutCancel(ctx)
	ch := e.group.DoChan(k, func() (any, error) {
		// another flight may have filled it between our miss and now
		if r, ok := e.results.Peek(k); ok {
			return r, nil
		}
		gen := e.generation()
		r, err := e.fetch(detached, key)
		if err != nil {
			e.log.Debug().Err(err).Str("key", k).Msg("query failed")
			return nil, &QueryError{Key: k, Err: err}
		}
		e.mu.Lock()
		if e.gen == gen {
			e.results.Add(k, r)
		}
		e.mu.Unlock()
		return r, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result).clone(), nil
	}
}

func (e *Engine) fetch(ctx context.Context, key Key) (*Result, error) {
	sr, err := e.remote.SearchDogs(ctx, key.SearchParams())
	if err != nil {
		return nil, err
	}
	r := &Result{
		Key:        key,
		IDs:        sr.ResultIDs,
		Total:      sr.Total,
		TotalPages: TotalPages(sr.Total),
		Next:       sr.Next,
		Prev:       sr.Prev,
	}
	if len(r.IDs) > PageSize {
		r.IDs = r.IDs[:PageSize]
	}
	if len(r.IDs) == 0 {
		r.IDs = []string{}
		r.Dogs = []fetch.Dog{}
		return r, nil
	}
	dogs, err := e.remote.Dogs(ctx, r.IDs)
	if err != nil {
		return nil, err
	}
	r.Dogs = dogs
	return r, nil
}

// Cached reports whether key is answered from memory.
func (e *Engine) Cached(key Key) bool { return e.results.Contains(key.String()) }

// Purge drops every cached page and the breed list. Fetches still in
// flight complete for their callers but are not cached.
func (e *Engine) Purge() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	e.results.Purge()
	e.breeds = nil
}

func (e *Engine) generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen
}

// Breeds returns the breed list, fetched once per engine.
func (e *Engine) Breeds(ctx context.Context) ([]string, error) {
	e.mu.RLock()
	b := e.breeds
	e.mu.RUnlock()
	if b != nil {
		return append([]string(nil), b...), nil
	}

	detached := context.WithoutCancel(ctx)
	ch := e.group.DoChan(breedsFlight, func() (any, error) {
		gen := e.generation()
		b, err := e.remote.Breeds(detached)
		if err != nil {
			return nil, err
		}
		if b == nil {
			b = []string{}
		}
		e.mu.Lock()
		if e.gen == gen {
			e.breeds = b
		}
		e.mu.Unlock()
		return b, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]string(nil), res.Val.([]string)...), nil
	}
}

// TotalPages is ceil(total / PageSize).
func TotalPages(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + PageSize - 1) / PageSize
}

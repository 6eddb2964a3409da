// Package location resolves zip codes to locations in bulk and keeps them
// cached for the life of the workspace.
package location

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/buddy/cache"
	"github.com/briangreenhill/buddy/fetch"
)

// Remote is the part of the fetch client the cache needs.
type Remote interface {
	Locations(ctx context.Context, zips []string) ([]fetch.Location, error)
	SearchLocations(ctx context.Context, p fetch.LocationSearchParams) (*fetch.LocationSearchResponse, error)
}

// DefaultCacheSize is how many zip codes a Cache remembers by default.
const DefaultCacheSize = 4096

// entry is a cached lookup. A nil loc means the service does not know the code.
type entry struct {
	loc *fetch.Location
}

// Cache is a read-through zip code to Location cache. Unknown codes are cached too.
type Cache struct {
	remote  Remote
	entries *cache.LRU[string, entry]
	chunk   int
	log     zerolog.Logger
}

// Option configures a Cache.
type Option func(*config)

type config struct {
	size  int
	name  string
	chunk int
	log   zerolog.Logger
}

func WithCacheSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.size = n
		}
	}
}

func WithCacheName(name string) Option { return func(c *config) { c.name = name } }

func WithLogger(l zerolog.Logger) Option { return func(c *config) { c.log = l } }

// WithChunkSize lowers the per-call batch below fetch.MaxBulk.
func WithChunkSize(n int) Option {
	return func(c *config) {
		if n > 0 && n <= fetch.MaxBulk {
			c.chunk = n
		}
	}
}

// New returns a Cache in front of remote.
func New(remote Remote, opts ...Option) (*Cache, error) {
	cfg := config{size: DefaultCacheSize, name: "location", chunk: fetch.MaxBulk, log: zerolog.Nop()}
	for _, o := range opts {
		o(&cfg)
	}
	entries, err := cache.NewLRU[string, entry](cfg.name, cfg.size, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{remote: remote, entries: entries, chunk: cfg.chunk, log: cfg.log}, nil
}

// Lookup returns the known locations for zips. Cached codes are answered
// without a call; the rest are fetched in chunks of at most fetch.MaxBulk.
// Unknown codes are simply absent. When a chunk fails its codes are absent
// too and the joined chunk errors come back alongside the partial map.
func (c *Cache) Lookup(ctx context.Context, zips []string) (map[string]fetch.Location, error) {
	out := make(map[string]fetch.Location, len(zips))
	var missing []string
	seen := make(map[string]struct{}, len(zips))
	for _, z := range zips {
		z = strings.TrimSpace(z)
		if z == "" {
			continue
		}
		if _, dup := seen[z]; dup {
			continue
		}
		seen[z] = struct{}{}
		if e, ok := c.entries.Get(z); ok {
			if e.loc != nil {
				out[z] = *e.loc
			}
			continue
		}
		missing = append(missing, z)
	}

	var errs []error
	for start := 0; start < len(missing); start += c.chunk {
		end := min(start+c.chunk, len(missing))
		batch := missing[start:end]
		locs, err := c.remote.Locations(ctx, batch)
		if err != nil {
			c.log.Warn().Err(err).Int("codes", len(batch)).Msg("location lookup failed")
			errs = append(errs, fmt.Errorf("locations %d-%d: %w", start, end-1, err))
			continue
		}
		found := make(map[string]struct{}, len(locs))
		for i := range locs {
			l := locs[i]
			c.entries.Add(l.ZipCode, entry{loc: &l})
			found[l.ZipCode] = struct{}{}
			if _, asked := seen[l.ZipCode]; asked {
				out[l.ZipCode] = l
			}
		}
		for _, z := range batch {
			if _, ok := found[z]; !ok {
				c.entries.Add(z, entry{})
			}
		}
	}
	return out, errors.Join(errs...)
}

// Get returns a cached location without calling out. The second result is
// false when the code was never looked up or is unknown to the service.
func (c *Cache) Get(zip string) (fetch.Location, bool) {
	e, ok := c.entries.Peek(zip)
	if !ok || e.loc == nil {
		return fetch.Location{}, false
	}
	return *e.loc, true
}

// Search passes through to the remote location search and caches the hits.
func (c *Cache) Search(ctx context.Context, p fetch.LocationSearchParams) (*fetch.LocationSearchResponse, error) {
	res, err := c.remote.SearchLocations(ctx, p)
	if err != nil {
		return nil, err
	}
	for i := range res.Results {
		l := res.Results[i]
		c.entries.Add(l.ZipCode, entry{loc: &l})
	}
	return res, nil
}

func (c *Cache) Len() int { return c.entries.Len() }

// Purge forgets every cached code.
func (c *Cache) Purge() { c.entries.Purge() }

// Listing is a dog paired with its location, if known.
type Listing struct {
	Dog      fetch.Dog       `json:"dog"`
	Location *fetch.Location `json:"location,omitempty"`
}

// Annotate pairs every dog with its location from locs, keeping order.
func Annotate(dogs []fetch.Dog, locs map[string]fetch.Location) []Listing {
	out := make([]Listing, len(dogs))
	for i, d := range dogs {
		out[i].Dog = d
		if l, ok := locs[d.ZipCode]; ok {
			out[i].Location = &l
		}
	}
	return out
}

// ZipsOf returns the distinct zip codes of dogs in first-seen order.
func ZipsOf(dogs []fetch.Dog) []string {
	seen := make(map[string]struct{}, len(dogs))
	var out []string
	for _, d := range dogs {
		if d.ZipCode == "" {
			continue
		}
		if _, ok := seen[d.ZipCode]; ok {
			continue
		}
		seen[d.ZipCode] = struct{}{}
		out = append(out, d.ZipCode)
	}
	return out
}

// CityOf formats "City, ST" for the dog, or "" when its location is unknown.
func CityOf(d fetch.Dog, locs map[string]fetch.Location) string {
	l, ok := locs[d.ZipCode]
	if !ok {
		return ""
	}
	if l.State == "" {
		return l.City
	}
	return l.City + ", " + l.State
}

// City is a group of locations sharing a city and state.
type City struct {
	City      string           `json:"city"`
	State     string           `json:"state"`
	Locations []fetch.Location `json:"locations"`
}

// GroupByCity groups locations by city and state, sorted by state then city,
// with zip codes sorted inside each group.
func GroupByCity(locs []fetch.Location) []City {
	idx := map[string]int{}
	var out []City
	for _, l := range locs {
		k := l.State + "\x00" + l.City
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, City{City: l.City, State: l.State})
		}
		out[i].Locations = append(out[i].Locations, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].State != out[j].State {
			return out[i].State < out[j].State
		}
		return out[i].City < out[j].City
	})
	for i := range out {
		ls := out[i].Locations
		sort.Slice(ls, func(a, b int) bool { return ls[a].ZipCode < ls[b].ZipCode })
	}
	return out
}

// ZipCodes turns picked locations into a zip code filter.
func ZipCodes(locs []fetch.Location) []string {
	out := make([]string, 0, len(locs))
	seen := make(map[string]struct{}, len(locs))
	for _, l := range locs {
		if _, ok := seen[l.ZipCode]; ok || l.ZipCode == "" {
			continue
		}
		seen[l.ZipCode] = struct{}{}
		out = append(out, l.ZipCode)
	}
	sort.Strings(out)
	return out
}

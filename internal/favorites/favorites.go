// Package favorites is the persisted, insertion-ordered set of dogs a visitor
// has bookmarked.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/buddy/fetch"
	"github.com/briangreenhill/buddy/internal/storage"
)

// StorageKey holds the JSON array of favorite dogs.
const StorageKey = "buddy_favorites"

// Store is the only writer of the favorites key. Every mutation writes the
// whole set, so cost grows linearly with its size.
type Store struct {
	st  storage.Store
	log zerolog.Logger

	mu    sync.RWMutex
	dogs  []fetch.Dog
	index map[string]int

	subMu  sync.Mutex
	subs   map[int]func([]fetch.Dog)
	nextID int
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l zerolog.Logger) Option { return func(s *Store) { s.log = l } }

// Open rehydrates the set from st. Unreadable data is logged and treated as
// an empty set; it is overwritten on the next mutation.
func Open(ctx context.Context, st storage.Store, opts ...Option) (*Store, error) {
	s := &Store{st: st, log: zerolog.Nop(), index: map[string]int{}, subs: map[int]func([]fetch.Dog){}}
	for _, o := range opts {
		o(s)
	}

	raw, err := st.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	var dogs []fetch.Dog
	if err := json.Unmarshal(raw, &dogs); err != nil {
		s.log.Warn().Err(err).Msg("discarding unreadable favorites")
		return s, nil
	}
	for _, d := range dogs {
		if d.ID == "" {
			continue
		}
		if _, dup := s.index[d.ID]; dup {
			continue
		}
		s.index[d.ID] = len(s.dogs)
		s.dogs = append(s.dogs, d)
	}
	return s, nil
}

// Add bookmarks d. Adding a present id changes nothing and writes nothing.
func (s *Store) Add(ctx context.Context, d fetch.Dog) error {
	if d.ID == "" {
		return errors.New("favorites: dog without id")
	}
	s.mu.Lock()
	if _, ok := s.index[d.ID]; ok {
		s.mu.Unlock()
		return nil
	}
	prev := s.dogs
	next := append(append(make([]fetch.Dog, 0, len(prev)+1), prev...), d)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshot()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// Remove drops id. Removing an absent id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	next := make([]fetch.Dog, 0, len(s.dogs)-1)
	next = append(next, s.dogs[:i]...)
	next = append(next, s.dogs[i+1:]...)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshot()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// Toggle adds d when absent and removes it when present.
func (s *Store) Toggle(ctx context.Context, d fetch.Dog) (added bool, err error) {
	if s.IsMember(d.ID) {
		return false, s.Remove(ctx, d.ID)
	}
	return true, s.Add(ctx, d)
}

// Clear empties the set and erases the stored key.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if len(s.dogs) == 0 {
		s.mu.Unlock()
		return nil
	}
	if err := s.st.Delete(ctx, StorageKey); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clear favorites: %w", err)
	}
	s.dogs = nil
	s.index = map[string]int{}
	s.mu.Unlock()
	s.notify(nil)
	return nil
}

// commit persists next and only then swaps it in. Callers hold s.mu.
func (s *Store) commit(ctx context.Context, next []fetch.Dog) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := s.st.Put(ctx, StorageKey, raw); err != nil {
		return fmt.Errorf("save favorites: %w", err)
	}
	s.dogs = next
	s.index = make(map[string]int, len(next))
	for i, d := range next {
		s.index[d.ID] = i
	}
	return nil
}

// IsMember reports whether id is a favorite.
func (s *Store) IsMember(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

// List returns the favorites in the order they were added.
func (s *Store) List() []fetch.Dog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// IDs returns favorite ids in insertion order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.dogs))
	for i, d := range s.dogs {
		out[i] = d.ID
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dogs)
}

func (s *Store) snapshot() []fetch.Dog {
	return append([]fetch.Dog(nil), s.dogs...)
}

// Subscribe calls fn with a snapshot after every successful change.
func (s *Store) Subscribe(fn func([]fetch.Dog)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(snap []fetch.Dog) {
	s.subMu.Lock()
	fns := make([]func([]fetch.Dog), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(append([]fetch.Dog(nil), snap...))
	}
}

// SortBy orders favorites for display.
type SortBy string

const (
	ByName  SortBy = "name"
	ByBreed SortBy = "breed"
	ByAge   SortBy = "age"
)

// Sorted returns a copy ordered by field. Names and breeds compare without
// case; unknown fields keep insertion order.
func (s *Store) Sorted(by SortBy, desc bool) []fetch.Dog {
	out := s.List()
	var compare func(a, b fetch.Dog) int
	switch by {
	case ByName:
		compare = func(a, b fetch.Dog) int { return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) }
	case ByBreed:
		compare = func(a, b fetch.Dog) int { return strings.Compare(strings.ToLower(a.Breed), strings.ToLower(b.Breed)) }
	case ByAge:
		compare = func(a, b fetch.Dog) int { return a.Age - b.Age }
	default:
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j])
		if desc {
			c = -c
		}
		return c < 0
	})
	return out
}

// Package match runs the two-step remote match: pick an id from the
// favorites, then fetch that dog's record.
package match

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/buddy/fetch"
)

var (
	ErrValidation = errors.New("validation error")
	// ErrNoFavorites is returned before any remote call for an empty id list.
	ErrNoFavorites = fmt.Errorf("%w: no favorites to match from", ErrValidation)
	// ErrRecordMissing means the service matched an id it then could not return.
	ErrRecordMissing = errors.New("matched dog record not returned")
)

// Remote is the part of the fetch client a match needs.
type Remote interface {
	Match(ctx context.Context, ids []string) (string, error)
	Dogs(ctx context.Context, ids []string) ([]fetch.Dog, error)
}

// Status is where the match slot stands.
type Status string

const (
	Idle     Status = "idle"
	Loading  Status = "loading"
	Resolved Status = "resolved"
	Failed   Status = "failed"
)

// State is the current match slot. Dog survives a later failed attempt.
type State struct {
	Status Status
	Dog    *fetch.Dog
	Err    error
}

// Orchestrator owns the match slot. It does not coalesce overlapping
// requests; callers keep one in flight at a time.
type Orchestrator struct {
	remote Remote
	log    zerolog.Logger

	mu    sync.Mutex
	state State
}

// New returns an idle orchestrator.
func New(remote Remote, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{remote: remote, log: log, state: State{Status: Idle}}
}

// Request matches against ids and resolves the chosen dog. The record fetch
// starts only after the match call has returned.
func (o *Orchestrator) Request(ctx context.Context, ids []string) (*fetch.Dog, error) {
	if len(ids) == 0 {
		return nil, ErrNoFavorites
	}
	o.set(func(s *State) { s.Status, s.Err = Loading, nil })

	dog, err := o.resolve(ctx, ids)
	if err != nil {
		o.log.Debug().Err(err).Int("favorites", len(ids)).Msg("match failed")
		o.set(func(s *State) { s.Status, s.Err = Failed, err })
		return nil, err
	}
	o.set(func(s *State) { s.Status, s.Dog, s.Err = Resolved, dog, nil })
	d := *dog
	return &d, nil
}

func (o *Orchestrator) resolve(ctx context.Context, ids []string) (*fetch.Dog, error) {
	id, err := o.remote.Match(ctx, ids)
	if err != nil {
		return nil, err
	}
	dogs, err := o.remote.Dogs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	for _, d := range dogs {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRecordMissing, id)
}

func (o *Orchestrator) set(fn func(*State)) {
	o.mu.Lock()
	fn(&o.state)
	o.mu.Unlock()
}

// State returns a copy of the match slot.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.state
	if s.Dog != nil {
		d := *s.Dog
		s.Dog = &d
	}
	return s
}

// Reset empties the slot.
func (o *Orchestrator) Reset() {
	o.set(func(s *State) { *s = State{Status: Idle} })
}

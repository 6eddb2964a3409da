// Package workspace wires one visitor's session, favorites, caches and
// match slot around a single remote client. Nothing here is global: each
// visitor gets its own Workspace over its own storage namespace.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/buddy/fetch"
	"github.com/briangreenhill/buddy/internal/favorites"
	"github.com/briangreenhill/buddy/internal/location"
	"github.com/briangreenhill/buddy/internal/match"
	"github.com/briangreenhill/buddy/internal/query"
	"github.com/briangreenhill/buddy/internal/session"
	"github.com/briangreenhill/buddy/internal/storage"
)

// CookieKey holds the remote access cookies between process restarts.
const CookieKey = "buddy_remote_cookies"

// Options configures Open. Zero values fall back to package defaults.
type Options struct {
	// Store is this visitor's storage, already namespaced.
	Store             storage.Store
	ClientOptions     []fetch.Option
	SessionOptions    []session.Option
	QueryCacheSize    int
	LocationCacheSize int
	Logger            zerolog.Logger
}

// Workspace is everything one visitor works with.
type Workspace struct {
	Client    *fetch.Client
	Session   *session.Monitor
	Favorites *favorites.Store
	Locations *location.Cache
	Engine    *query.Engine
	Browser   *query.Browser
	Match     *match.Orchestrator

	st  storage.Store
	log zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopObs func()
}

// Open builds the workspace and rehydrates cookies, session and favorites.
func Open(ctx context.Context, o Options) (*Workspace, error) {
	if o.Store == nil {
		o.Store = storage.NewMemory()
	}
	log := o.Logger
	w := &Workspace{st: o.Store, log: log}

	client, err := fetch.New(append([]fetch.Option{fetch.WithLogger(log)}, o.ClientOptions...)...)
	if err != nil {
		return nil, err
	}
	w.Client = client
	if err := w.restoreCookies(ctx); err != nil {
		log.Warn().Err(err).Msg("ignoring stored remote cookies")
	}

	w.Session, err = session.New(ctx, o.Store, client, append([]session.Option{session.WithLogger(log)}, o.SessionOptions...)...)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if _, active := w.Session.Current(ctx); !active {
		// cookies without a live session are stale
		w.dropCookies(ctx)
	}

	w.Favorites, err = favorites.Open(ctx, o.Store, favorites.WithLogger(log))
	if err != nil {
		return nil, err
	}
	w.Locations, err = location.New(client, location.WithCacheSize(o.LocationCacheSize), location.WithLogger(log))
	if err != nil {
		return nil, err
	}
	w.Engine, err = query.NewEngine(client, query.WithCacheSize(o.QueryCacheSize), query.WithLogger(log))
	if err != nil {
		return nil, err
	}
	w.Browser = query.NewBrowser(w.Engine)
	w.Match = match.New(client, log)

	w.stopObs = w.Session.OnChange(func(ev session.Event) {
		switch ev.Kind {
		case session.LoggedOut, session.Expired:
			w.onSessionEnd(ev)
		}
	})
	return w, nil
}

// Login starts a session and remembers the remote cookies it produced.
func (w *Workspace) Login(ctx context.Context, creds fetch.Credentials) (session.Session, error) {
	s, err := w.Session.Login(ctx, creds)
	if err != nil {
		return session.Session{}, err
	}
	if err := w.saveCookies(ctx); err != nil {
		w.log.Warn().Err(err).Msg("could not persist remote cookies")
	}
	return s, nil
}

// Logout ends the session. Local state is cleared even if the remote call fails.
func (w *Workspace) Logout(ctx context.Context) error {
	return w.Session.Logout(ctx)
}

func (w *Workspace) onSessionEnd(ev session.Event) {
	w.log.Debug().Str("event", string(ev.Kind)).Msg("session ended, resetting workspace")
	w.Match.Reset()
	w.Browser.Reset()
	w.dropCookies(context.Background())
}

// Start runs the session expiry loop until Close.
func (w *Workspace) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		w.Session.Run(ctx)
	}(w.done)
}

// Close stops the expiry loop. State stays in storage.
func (w *Workspace) Close() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Teardown stops the workspace and erases everything it persisted.
func (w *Workspace) Teardown(ctx context.Context) error {
	w.Close()
	err := errors.Join(w.Session.Clear(ctx), w.Favorites.Clear(ctx))
	w.Engine.Purge()
	w.Locations.Purge()
	w.Match.Reset()
	w.Browser.Reset()
	w.dropCookies(ctx)
	if w.stopObs != nil {
		w.stopObs()
	}
	return err
}

// Listings resolves locations for the dogs on r and pairs them up. A failed
// location lookup only leaves the affected locations empty.
func (w *Workspace) Listings(ctx context.Context, r *query.Result) []location.Listing {
	if r == nil {
		return nil
	}
	locs, err := w.Locations.Lookup(ctx, location.ZipsOf(r.Dogs))
	if err != nil {
		w.log.Warn().Err(err).Str("key", r.Key.String()).Msg("location enrichment incomplete")
	}
	return location.Annotate(r.Dogs, locs)
}

// MatchFavorites asks for a match among the current favorites and returns
// the matched dog with its location.
func (w *Workspace) MatchFavorites(ctx context.Context) (*location.Listing, error) {
	dog, err := w.Match.Request(ctx, w.Favorites.IDs())
	if err != nil {
		return nil, err
	}
	return w.annotateOne(ctx, *dog), nil
}

// CurrentMatch is the match slot with the dog's location when known.
func (w *Workspace) CurrentMatch(ctx context.Context) (match.State, *location.Listing) {
	st := w.Match.State()
	if st.Dog == nil {
		return st, nil
	}
	return st, w.annotateOne(ctx, *st.Dog)
}

func (w *Workspace) annotateOne(ctx context.Context, d fetch.Dog) *location.Listing {
	locs, err := w.Locations.Lookup(ctx, []string{d.ZipCode})
	if err != nil {
		w.log.Warn().Err(err).Str("dog", d.ID).Msg("match location lookup failed")
	}
	l := location.Annotate([]fetch.Dog{d}, locs)[0]
	return &l
}

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (w *Workspace) saveCookies(ctx context.Context) error {
	cs := w.Client.Cookies()
	out := make([]storedCookie, 0, len(cs))
	for _, c := range cs {
		out = append(out, storedCookie{Name: c.Name, Value: c.Value})
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return w.st.Put(ctx, CookieKey, raw)
}

func (w *Workspace) restoreCookies(ctx context.Context) error {
	raw, err := w.st.Get(ctx, CookieKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var stored []storedCookie
	if err := json.Unmarshal(raw, &stored); err != nil {
		return err
	}
	cs := make([]*http.Cookie, 0, len(stored))
	for _, s := range stored {
		cs = append(cs, &http.Cookie{Name: s.Name, Value: s.Value, Path: "/"})
	}
	w.Client.SetCookies(cs)
	return nil
}

func (w *Workspace) dropCookies(ctx context.Context) {
	w.Client.ClearCookies()
	if err := w.st.Delete(ctx, CookieKey); err != nil {
		w.log.Warn().Err(err).Msg("could not erase remote cookies")
	}
}

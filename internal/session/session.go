// Package session keeps the visitor's identity with a fixed time-to-live.
// Expiry is a state change, never an error: once the TTL passes, the next
// read or the periodic check erases the persisted identity.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/buddy/fetch"
	"github.com/briangreenhill/buddy/internal/storage"
)

const (
	UserKey   = "buddy_user"
	ExpiryKey = "buddy_user_expiry"

	DefaultTTL      = time.Hour
	DefaultInterval = 60 * time.Second
)

var (
	ErrValidation = errors.New("validation error")
	// ErrMissingEmail rejects a login before the remote call.
	ErrMissingEmail = fmt.Errorf("%w: email is required", ErrValidation)
)

// Identity is what gets persisted under UserKey.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session is an identity with the instant it stops being valid.
type Session struct {
	Identity
	ExpiresAt time.Time
}

// Authenticator performs the remote login and logout.
type Authenticator interface {
	Login(ctx context.Context, creds fetch.Credentials) error
	Logout(ctx context.Context) error
}

// EventKind names a session transition.
type EventKind string

const (
	LoggedIn  EventKind = "logged_in"
	LoggedOut EventKind = "logged_out"
	Expired   EventKind = "expired"
)

// Event is delivered to OnChange observers.
type Event struct {
	Kind    EventKind
	Session Session
}

// Monitor owns one visitor's session: it logs in and out, persists the
// identity and ends the session once its TTL passes.
type Monitor struct {
	st       storage.Store
	auth     Authenticator
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger

	// persistMu orders writes and erases of the persisted keys. It is
	// taken before mu, never after.
	persistMu sync.Mutex
	mu        sync.Mutex
	cur       *Session

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

// WithTTL sets how long a login lasts. Non-positive values keep the default.
func WithTTL(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithInterval sets how often Run checks for expiry.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option { return func(m *Monitor) { m.log = l } }

// New rehydrates the session from st. Expired or half-written data is erased.
func New(ctx context.Context, st storage.Store, auth Authenticator, opts ...Option) (*Monitor, error) {
	m := &Monitor{
		st:        st,
		auth:      auth,
		ttl:       DefaultTTL,
		interval:  DefaultInterval,
		now:       time.Now,
		log:       zerolog.Nop(),
		observers: map[int]func(Event){},
	}
	for _, o := range opts {
		o(m)
	}

	s, err := load(ctx, st)
	switch {
	case errors.Is(err, errIncomplete):
		m.log.Debug().Msg("erasing incomplete persisted session")
		if err := erase(ctx, st); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case s == nil:
	case !m.now().Before(s.ExpiresAt):
		m.log.Info().Str("email", s.Email).Msg("persisted session expired")
		if err := erase(ctx, st); err != nil {
			return nil, err
		}
	default:
		m.cur = s
	}
	return m, nil
}

// TTL is the fixed session lifetime.
func (m *Monitor) TTL() time.Duration      { return m.ttl }
func (m *Monitor) Interval() time.Duration { return m.interval }

// Login authenticates remotely and starts a session that expires TTL from
// now. Activity never extends it. A blank name falls back to the email.
func (m *Monitor) Login(ctx context.Context, creds fetch.Credentials) (Session, error) {
	creds.Name = strings.TrimSpace(creds.Name)
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" {
		return Session{}, ErrMissingEmail
	}
	if err := m.auth.Login(ctx, creds); err != nil {
		return Session{}, err
	}

	name := creds.Name
	if name == "" {
		name = creds.Email
	}
	m.persistMu.Lock()
	s := Session{Identity: Identity{Name: name, Email: creds.Email}, ExpiresAt: m.now().Add(m.ttl)}
	if err := save(ctx, m.st, s); err != nil {
		m.persistMu.Unlock()
		return Session{}, err
	}
	m.mu.Lock()
	m.cur = &s
	m.mu.Unlock()
	m.persistMu.Unlock()
	m.log.Info().Str("email", s.Email).Time("expires_at", s.ExpiresAt).Msg("logged in")
	m.emit(Event{Kind: LoggedIn, Session: s})
	return s, nil
}

// Logout ends the session remotely and locally. Local state is cleared even
// when the remote call fails; that error is still returned.
func (m *Monitor) Logout(ctx context.Context) error {
	remoteErr := m.auth.Logout(ctx)
	if remoteErr != nil {
		m.log.Warn().Err(remoteErr).Msg("remote logout failed, clearing local session anyway")
	}
	if err := m.Clear(ctx); err != nil {
		return errors.Join(remoteErr, err)
	}
	return remoteErr
}

// Clear ends the session locally without telling the remote service.
func (m *Monitor) Clear(ctx context.Context) error {
	m.persistMu.Lock()
	m.mu.Lock()
	prev := m.cur
	m.cur = nil
	m.mu.Unlock()
	err := erase(ctx, m.st)
	m.persistMu.Unlock()
	if prev != nil {
		m.emit(Event{Kind: LoggedOut, Session: *prev})
	}
	return err
}

// Current returns the active session. A session past its expiry is ended
// here before reporting none.
func (m *Monitor) Current(ctx context.Context) (Session, bool) {
	if !m.Check(ctx) {
		return Session{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Session{}, false
	}
	return *m.cur, true
}

// Check reports whether a session is active, ending it if it just expired.
// Running it again once expired does nothing.
func (m *Monitor) Check(ctx context.Context) bool {
	m.mu.Lock()
	cur := m.cur
	if cur == nil {
		m.mu.Unlock()
		return false
	}
	if m.now().Before(cur.ExpiresAt) {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	m.persistMu.Lock()
	m.mu.Lock()
	if m.cur != cur {
		// a login or logout got here first
		active := m.cur != nil
		m.mu.Unlock()
		m.persistMu.Unlock()
		return active
	}
	m.cur = nil
	m.mu.Unlock()
	err := erase(ctx, m.st)
	m.persistMu.Unlock()

	m.log.Info().Str("email", cur.Email).Msg("session expired")
	if err != nil {
		m.log.Error().Err(err).Msg("erase expired session")
	}
	m.emit(Event{Kind: Expired, Session: *cur})
	return false
}

// Run checks for expiry every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Check(ctx)
		}
	}
}

// OnChange registers fn for login, logout and expiry events.
func (m *Monitor) OnChange(fn func(Event)) (cancel func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()
	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Monitor) emit(ev Event) {
	m.obsMu.Lock()
	fns := make([]func(Event), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.obsMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

var errIncomplete = errors.New("incomplete persisted session")

func load(ctx context.Context, st storage.Store) (*Session, error) {
	rawUser, errUser := st.Get(ctx, UserKey)
	rawExp, errExp := st.Get(ctx, ExpiryKey)
	for _, err := range []error{errUser, errExp} {
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load session: %w", err)
		}
	}
	if errUser != nil && errExp != nil {
		return nil, nil
	}
	if errUser != nil || errExp != nil {
		return nil, errIncomplete
	}

	var id Identity
	if err := json.Unmarshal(rawUser, &id); err != nil || id.Email == "" {
		return nil, errIncomplete
	}
	exp, err := ParseExpiry(rawExp)
	if err != nil {
		return nil, errIncomplete
	}
	return &Session{Identity: id, ExpiresAt: exp}, nil
}

func save(ctx context.Context, st storage.Store, s Session) error {
	raw, err := json.Marshal(s.Identity)
	if err != nil {
		return err
	}
	if err := st.Put(ctx, UserKey, raw); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := st.Put(ctx, ExpiryKey, FormatExpiry(s.ExpiresAt)); err != nil {
		return fmt.Errorf("save session expiry: %w", err)
	}
	return nil
}

func erase(ctx context.Context, st storage.Store) error {
	return errors.Join(st.Delete(ctx, UserKey), st.Delete(ctx, ExpiryKey))
}

// FormatExpiry encodes t as epoch milliseconds.
func FormatExpiry(t time.Time) []byte {
	return []byte(strconv.FormatInt(t.UnixMilli(), 10))
}

// ParseExpiry reads what FormatExpiry wrote.
func ParseExpiry(raw []byte) (time.Time, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session expiry: %w", err)
	}
	return time.UnixMilli(ms), nil
}

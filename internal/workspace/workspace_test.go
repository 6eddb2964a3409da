package workspace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/buddy/fetch"
	"github.com/briangreenhill/buddy/internal/favorites"
	"github.com/briangreenhill/buddy/internal/fetchtest"
	"github.com/briangreenhill/buddy/internal/match"
	"github.com/briangreenhill/buddy/internal/query"
	"github.com/briangreenhill/buddy/internal/session"
	"github.com/briangreenhill/buddy/internal/storage"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var creds = fetch.Credentials{Name: "Ada", Email: "ada@example.com"}

func seeded(t *testing.T) *fetchtest.Server {
	srv := fetchtest.New(t)
	srv.RequireAuth(true)
	srv.SeedDogs(fetchtest.Dogs(10)...)
	srv.SeedLocations(
		fetch.Location{ZipCode: "10001", City: "New York", State: "NY"},
		fetch.Location{ZipCode: "20002", City: "Washington", State: "DC"},
	)
	return srv
}

func openWS(t *testing.T, srv *fetchtest.Server, st storage.Store, clk *clock) *Workspace {
	t.Helper()
	w, err := Open(context.Background(), Options{
		Store:          st,
		ClientOptions:  []fetch.Option{fetch.WithBaseURL(srv.URL), fetch.WithHTTPClient(srv.Server.Client())},
		SessionOptions: []session.Option{session.WithClock(clk.Now)},
	})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestLoginSurvivesReopen(t *testing.T) {
	srv := seeded(t)
	st := storage.NewMemory()
	clk := &clock{t: time.Now()}
	ctx := context.Background()

	w := openWS(t, srv, st, clk)
	_, err := w.Login(ctx, creds)
	require.NoError(t, err)
	_, err = st.Get(ctx, CookieKey)
	require.NoError(t, err)

	again := openWS(t, srv, st, clk)
	s, ok := again.Session.Current(ctx)
	require.True(t, ok)
	assert.Equal(t, "Ada", s.Name)

	// the restored cookie authenticates remote calls
	breeds, err := again.Engine.Breeds(ctx)
	require.NoError(t, err)
	assert.Len(t, breeds, 3)
}

func TestExpiryResetsWorkspace(t *testing.T) {
	srv := seeded(t)
	st := storage.NewMemory()
	clk := &clock{t: time.Now()}
	ctx := context.Background()

	w := openWS(t, srv, st, clk)
	_, err := w.Login(ctx, creds)
	require.NoError(t, err)
	require.NoError(t, w.Favorites.Add(ctx, fetch.Dog{ID: "d1", ZipCode: "10001"}))
	_, err = w.MatchFavorites(ctx)
	require.NoError(t, err)
	assert.Equal(t, match.Resolved, w.Match.State().Status)

	clk.Advance(61 * time.Minute)
	assert.False(t, w.Session.Check(ctx))

	assert.Equal(t, match.Idle, w.Match.State().Status)
	assert.Empty(t, w.Client.Cookies())
	_, err = st.Get(ctx, CookieKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1, w.Favorites.Len(), "favorites outlive the session")

	_, err = w.Engine.Breeds(ctx)
	assert.True(t, fetch.IsUnauthorized(err))
}

func TestListingsAnnotateLocations(t *testing.T) {
	srv := seeded(t)
	w := openWS(t, srv, storage.NewMemory(), &clock{t: time.Now()})
	ctx := context.Background()
	_, err := w.Login(ctx, creds)
	require.NoError(t, err)

	key, err := query.NewKey(query.Filter{}, query.DefaultSort, 1)
	require.NoError(t, err)
	r, err := w.Engine.Query(ctx, key)
	require.NoError(t, err)

	ls := w.Listings(ctx, r)
	require.Len(t, ls, 10)
	assert.Equal(t, 1, srv.Calls("locations"))
	assert.ElementsMatch(t, []string{"10001", "20002", "30003"}, srv.LastBody("locations"))
	for _, l := range ls {
		switch l.Dog.ZipCode {
		case "30003":
			assert.Nil(t, l.Location)
		default:
			require.NotNil(t, l.Location)
			assert.Equal(t, l.Dog.ZipCode, l.Location.ZipCode)
		}
	}

	// locations failing does not fail the listing
	srv.Fail("locations", 500)
	w.Locations.Purge()
	ls = w.Listings(ctx, r)
	require.Len(t, ls, 10)
	assert.Nil(t, ls[0].Location)
}

func TestMatchFavorites(t *testing.T) {
	srv := seeded(t)
	srv.MatchWith("d2")
	w := openWS(t, srv, storage.NewMemory(), &clock{t: time.Now()})
	ctx := context.Background()
	_, err := w.Login(ctx, creds)
	require.NoError(t, err)

	_, err = w.MatchFavorites(ctx)
	assert.ErrorIs(t, err, match.ErrNoFavorites)
	assert.Equal(t, 0, srv.Calls("match"))

	require.NoError(t, w.Favorites.Add(ctx, fetch.Dog{ID: "d1"}))
	require.NoError(t, w.Favorites.Add(ctx, fetch.Dog{ID: "d2"}))
	l, err := w.MatchFavorites(ctx)
	require.NoError(t, err)
	assert.Equal(t, "d2", l.Dog.ID)
	require.NotNil(t, l.Location)
	assert.Equal(t, "Washington", l.Location.City)
	assert.Equal(t, []string{"d1", "d2"}, srv.LastBody("match"))

	st, cur := w.CurrentMatch(ctx)
	assert.Equal(t, match.Resolved, st.Status)
	assert.Equal(t, "d2", cur.Dog.ID)
}

func TestTeardownErasesEverything(t *testing.T) {
	srv := seeded(t)
	st := storage.NewMemory()
	w := openWS(t, srv, st, &clock{t: time.Now()})
	ctx := context.Background()
	w.Start(ctx)

	_, err := w.Login(ctx, creds)
	require.NoError(t, err)
	require.NoError(t, w.Favorites.Add(ctx, fetch.Dog{ID: "d1"}))

	require.NoError(t, w.Teardown(ctx))
	keys, err := st.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
	_, ok := w.Session.Current(ctx)
	assert.False(t, ok)
	assert.Equal(t, 0, w.Favorites.Len())
}

func TestStartRunsExpiryLoop(t *testing.T) {
	srv := seeded(t)
	st := storage.NewMemory()
	clk := &clock{t: time.Now()}
	w, err := Open(context.Background(), Options{
		Store:         st,
		ClientOptions: []fetch.Option{fetch.WithBaseURL(srv.URL), fetch.WithHTTPClient(srv.Server.Client())},
		SessionOptions: []session.Option{
			session.WithClock(clk.Now),
			session.WithInterval(5 * time.Millisecond),
		},
	})
	require.NoError(t, err)
	defer w.Close()
	ctx := context.Background()

	_, err = w.Login(ctx, creds)
	require.NoError(t, err)
	w.Start(ctx)
	w.Start(ctx) // second start is a no-op

	clk.Advance(2 * time.Hour)
	require.Eventually(t, func() bool {
		_, err := st.Get(ctx, session.UserKey)
		return err != nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRegistry(t *testing.T) {
	srv := seeded(t)
	shared := storage.NewMemory()
	clk := &clock{t: time.Now()}
	opened := 0
	reg, err := NewRegistry(1, func(ctx context.Context, id string) (*Workspace, error) {
		opened++
		return Open(ctx, Options{
			Store:          storage.Namespace(shared, "visitor/"+id),
			ClientOptions:  []fetch.Option{fetch.WithBaseURL(srv.URL), fetch.WithHTTPClient(srv.Server.Client())},
			SessionOptions: []session.Option{session.WithClock(clk.Now)},
		})
	})
	require.NoError(t, err)
	defer reg.Close()
	ctx := context.Background()

	a, err := reg.Get(ctx, "a")
	require.NoError(t, err)
	a2, err := reg.Get(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, a, a2)
	assert.Equal(t, 1, opened)
	require.NoError(t, a.Favorites.Add(ctx, fetch.Dog{ID: "d7"}))

	_, err = reg.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	// a was evicted; it comes back from storage
	a3, err := reg.Get(ctx, "a")
	require.NoError(t, err)
	assert.NotSame(t, a, a3)
	assert.Equal(t, 3, opened)
	assert.True(t, a3.Favorites.IsMember("d7"))

	raw, err := shared.Get(ctx, "visitor/a/"+favorites.StorageKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "d7")

	reg.Drop("a")
	assert.Equal(t, 0, reg.Len())
}

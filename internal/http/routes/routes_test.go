package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/buddy/fetch"
	"github.com/briangreenhill/buddy/internal/fetchtest"
	"github.com/briangreenhill/buddy/internal/storage"
	"github.com/briangreenhill/buddy/internal/workspace"
)

type bff struct {
	remote *fetchtest.Server
	srv    *httptest.Server
	store  *storage.Memory
}

func newBFF(t *testing.T) *bff {
	t.Helper()
	remote := fetchtest.New(t)
	remote.RequireAuth(true)
	remote.SeedDogs(fetchtest.Dogs(100)...)
	remote.SeedLocations(
		fetch.Location{ZipCode: "10001", City: "New York", State: "NY"},
		fetch.Location{ZipCode: "20002", City: "Washington", State: "DC"},
	)

	shared := storage.NewMemory()
	reg, err := workspace.NewRegistry(8, func(ctx context.Context, id string) (*workspace.Workspace, error) {
		return workspace.Open(ctx, workspace.Options{
			Store:         storage.Namespace(shared, "visitor/"+id),
			ClientOptions: []fetch.Option{fetch.WithBaseURL(remote.URL), fetch.WithHTTPClient(remote.Server.Client())},
		})
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	s := New(ServerOptions{
		Sess:       NewSessionManager("buddy_session", false),
		Workspaces: reg,
		Logger:     zerolog.Nop(),
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &bff{remote: remote, srv: srv, store: shared}
}

// visitor is a browser with its own cookie jar.
type visitor struct {
	t    *testing.T
	base string
	c    *http.Client
}

func (b *bff) visitor(t *testing.T) *visitor {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &visitor{t: t, base: b.srv.URL, c: &http.Client{Jar: jar}}
}

func (v *visitor) do(method, path, body string, out any) int {
	v.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, v.base+path, rd)
	require.NoError(v.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := v.c.Do(req)
	require.NoError(v.t, err)
	defer resp.Body.Close() //nolint:errcheck
	raw, err := io.ReadAll(resp.Body)
	require.NoError(v.t, err)
	if out != nil && len(raw) > 0 {
		require.NoError(v.t, json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode
}

func (v *visitor) login() {
	v.t.Helper()
	require.Equal(v.t, http.StatusOK, v.do(http.MethodPost, "/auth/login", `{"name":"Ada","email":"ada@example.com"}`, nil))
}

func TestHealthAndMetrics(t *testing.T) {
	b := newBFF(t)
	v := b.visitor(t)

	resp, err := v.c.Get(b.srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	resp, err = v.c.Get(b.srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestIdentityRequired(t *testing.T) {
	b := newBFF(t)
	v := b.visitor(t)

	var e errorResponse
	assert.Equal(t, http.StatusUnauthorized, v.do(http.MethodGet, "/breeds", "", &e))
	assert.Equal(t, "login required", e.Error)
	assert.Equal(t, http.StatusUnauthorized, v.do(http.MethodGet, "/auth/me", "", nil))
	assert.Equal(t, 0, b.remote.Calls("breeds"))

	assert.Equal(t, http.StatusBadRequest, v.do(http.MethodPost, "/auth/login", `{"name":"Ada"}`, nil))
	assert.Equal(t, http.StatusBadRequest, v.do(http.MethodPost, "/auth/login", `{nope`, nil))
}

func TestLoginBrowseLogout(t *testing.T) {
	b := newBFF(t)
	v := b.visitor(t)
	v.login()

	var me identityResponse
	require.Equal(t, http.StatusOK, v.do(http.MethodGet, "/auth/me", "", &me))
	assert.Equal(t, "Ada", me.Name)
	assert.False(t, me.ExpiresAt.IsZero())

	var breeds []string
	require.Equal(t, http.StatusOK, v.do(http.MethodGet, "/breeds", "", &breeds))
	assert.Equal(t, []string{"Beagle", "Collie", "Husky"}, breeds)

	var page pageResponse
	require.Equal(t, http.StatusOK, v.do(http.MethodGet, "/dogs?breed=Beagle&sort=name:desc&page=1", "", &page))
	assert.Equal(t, 34, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Dogs, 32)
	assert.Equal(t, 32, page.PageSize)
	for _, l := range page.Dogs {
		assert.Equal(t, "Beagle", l.Dog.Breed)
		require.NotNil(t, l.Location)
		assert.Equal(t, "New York", l.Location.City)
	}

	// same query again is served from cache
	require.Equal(t, http.StatusOK, v.do(http.MethodGet, "/dogs?sort=name:desc&breed=Beagle", "", &page))
	assert.Equal(t, 1, b.remote.Calls("search_dogs"))
	assert.Equal(t, 1, b.remote.Calls("locations"))

	assert.Equal(t, http.StatusBadRequest, v.do(http.MethodGet, "/dogs?sort=color", "", nil))
	assert.Equal(t, http.StatusBadRequest, v.do(http.MethodGet, "/dogs?ageMin=5&ageMax=2", "", nil))
	assert.Equal(t, http.StatusBadRequest, v.do(http.MethodGet, "/dogs?page=two", "", nil))

	require.Equal(t, http.StatusNoContent, v.do(http.MethodPost, "/auth/logout", "", nil))
	assert.Equal(t, http.StatusUnauthorized, v.do(http.MethodGet, "/breeds", "", nil))
}

func TestBrowseResetsPageOnSortChange(t *testing.T) {
	b := newBFF(t)
	v := b.visitor(t)
	v.login()

	var br browseResponse
	require.Equal(t, http.StatusOK, v.do(http.MethodGet, "/browse", "", &br))
	assert.Equal(t, 1, br.Criteria.Page)
	assert.Equal(t, "breed:asc", br.Criteria.Sort)
	require.NotNil(t, br.Result)
	assert.Equal(t, 100, br.Result.Total)
	assert.Equal(t, 4, br.Result.TotalPages)

	require.Equal(t, http.StatusOK, v.do(http.MethodPatch, "/browse", `{"page":3}`, &br))
	assert.Equal(t, 3, br.Criteria.Page)
	assert.Equal(t, 3, br.Result.Page)

	require.Equal(t, http.StatusOK, v.do(http.MethodPatch, "/browse", `{"sort":"name:asc"}`, &br))
	assert.Equal(t, 1, br.Criteria.Page)
	assert.Equal(t, "name:asc", br.Criteria.Sort)

	require.Equal(t, http.StatusOK, v.do(http.MethodPatch, "/browse", `{"page":2}`, &br))
	require.Equal(t, http.StatusOK, v.do(http.MethodPatch, "/browse", `{"sort":"name:asc"}`, &br))
	assert.Equal(t, 2, br.Criteria.Page, "unchanged sort keeps the page")

	require.Equal(t, http.StatusOK, v.do(http.MethodPatch, "/browse", `{"breed":"Husky","zipCodes":["30003"]}`, &br))
	assert.Equal(t, 1, br.Criteria.Page)
	assert.Equal(t, 33, br.Result.Total)

	assert.Equal(t, http.StatusBadRequest, v.do(http.MethodPatch, "/browse", `{"ageMin":9,"ageMax":1}`, nil))
	assert.Equal(t, http.StatusBadRequest, v.do(http.MethodPatch, "/browse", `{"sort":"zip"}`, nil))
}

func TestRejectedBrowseUpdateChangesNothing(t *testing.T) {
	b := newBFF(t)
	v := b.visitor(t)
	v.login()

	var br browseResponse
	require.Equal(t, http.StatusOK, v.do(http.MethodPatch, "/browse", `{"breed":"Collie","page":2}`, &br))
	require.Equal(t, 2, br.Criteria.Page)

	for _, body := range []string{
		`{"breed":"Pug","sort":"color:asc"}`,
		`{"breed":"Pug","zipCodes":["10001"],"ageMin":7,"ageMax":3}`,
	} {
		assert.Equal(t, http.StatusBadRequest, v.do(http.MethodPatch, "/browse", body, nil), body)
	}

	require.Equal(t, http.StatusOK, v.do(http.MethodGet, "/browse", "", &br))
	assert.Equal(t, "Collie", br.Criteria.Breed)
	assert.Empty(t, br.Criteria.ZipCodes)
	assert.Nil(t, br.Criteria.AgeMin)
	assert.Equal(t, "breed:asc", br.Criteria.Sort)
	assert.Equal(t, 2, br.Criteria.Page)
}

func TestFavoritesAndMatch(t *testing.T) {
	b := newBFF(t)
	b.remote.MatchWith("d2")
	v := b.visitor(t)
	v.login()

	var m matchResponse
	assert.Equal(t, http.StatusBadRequest, v.do(http.MethodPost, "/match", "", &m))
	assert.Equal(t, 0, b.remote.Calls("match"))

	var fav favoritesResponse
	require.Equal(t, http.StatusOK, v.do(http.MethodPut, "/favorites", `{"id":"d1","name":"Zed","breed":"Beagle","age":3,"zip_code":"10001"}`, &fav))
	require.Equal(t, http.StatusOK, v.do(http.MethodPut, "/favorites", `{"id":"d2","name":"amy","breed":"Collie","age":1,"zip_code":"20002"}`, &fav))
	require.Equal(t, http.StatusOK, v.do(http.MethodPut, "/favorites", `{"id":"d2","name":"amy"}`, &fav))
	assert.Equal(t, 2, fav.Count)
	assert.Equal(t, http.StatusBadRequest, v.do(http.MethodPut, "/favorites", `{"name":"no id"}`, nil))

	require.Equal(t, http.StatusOK, v.do(http.MethodGet, "/favorites?sort=name", "", &fav))
	assert.Equal(t, "d2", fav.Dogs[0].ID)
	require.Equal(t, http.StatusOK, v.do(http.MethodGet, "/favorites?sort=age:desc", "", &fav))
	assert.Equal(t, "d1", fav.Dogs[0].ID)

	require.Equal(t, http.StatusOK, v.do(http.MethodPost, "/match", "", &m))
	assert.Equal(t, "resolved", string(m.Status))
	require.NotNil(t, m.Match)
	assert.Equal(t, "d2", m.Match.Dog.ID)
	assert.Equal(t, "Washington", m.Match.Location.City)

	b.remote.Fail("match", http.StatusInternalServerError)
	require.Equal(t, http.StatusBadGateway, v.do(http.MethodPost, "/match", "", &m))
	assert.Equal(t, "failed", string(m.Status))
	assert.Equal(t, "d2", m.Match.Dog.ID, "previous match is kept")

	require.Equal(t, http.StatusOK, v.do(http.MethodGet, "/match", "", &m))
	assert.Equal(t, "failed", string(m.Status))
	assert.NotEmpty(t, m.Error)

	require.Equal(t, http.StatusOK, v.do(http.MethodDelete, "/favorites/d1", "", &fav))
	assert.Equal(t, 1, fav.Count)
	require.Equal(t, http.StatusOK, v.do(http.MethodDelete, "/favorites/d1", "", &fav))
	assert.Equal(t, 1, fav.Count)
}

func TestLocations(t *testing.T) {
	b := newBFF(t)
	v := b.visitor(t)
	v.login()

	var lr locationsResponse
	require.Equal(t, http.StatusOK, v.do(http.MethodGet, "/locations?zip=10001&zip=99999", "", &lr))
	assert.Len(t, lr.Locations, 1)
	assert.Equal(t, "New York", lr.Locations["10001"].City)
	assert.False(t, lr.Partial)

	var sr fetch.LocationSearchResponse
	require.Equal(t, http.StatusOK, v.do(http.MethodPost, "/locations/search", `{"states":["DC"]}`, &sr))
	assert.Equal(t, 1, sr.Total)

	b.remote.Fail("locations", http.StatusInternalServerError)
	require.Equal(t, http.StatusOK, v.do(http.MethodGet, "/locations?zip=55555", "", &lr))
	assert.True(t, lr.Partial)
}

func TestRemoteFailureIsBadGateway(t *testing.T) {
	b := newBFF(t)
	v := b.visitor(t)
	v.login()

	b.remote.Fail("search_dogs", http.StatusInternalServerError)
	var e errorResponse
	assert.Equal(t, http.StatusBadGateway, v.do(http.MethodGet, "/dogs", "", &e))
	assert.Contains(t, e.Error, "HTTP 500")
}

func TestVisitorsAreIsolated(t *testing.T) {
	b := newBFF(t)
	ada := b.visitor(t)
	ada.login()
	require.Equal(t, http.StatusOK, ada.do(http.MethodPut, "/favorites", `{"id":"d9"}`, nil))

	bo := b.visitor(t)
	assert.Equal(t, http.StatusUnauthorized, bo.do(http.MethodGet, "/favorites", "", nil))
	require.Equal(t, http.StatusOK, bo.do(http.MethodPost, "/auth/login", `{"name":"Bo","email":"bo@example.com"}`, nil))
	var fav favoritesResponse
	require.Equal(t, http.StatusOK, bo.do(http.MethodGet, "/favorites", "", &fav))
	assert.Equal(t, 0, fav.Count)

	keys, err := b.store.Keys(context.Background(), "visitor/")
	require.NoError(t, err)
	var favKeys int
	for _, k := range keys {
		if strings.HasSuffix(k, "/buddy_favorites") {
			favKeys++
		}
	}
	assert.Equal(t, 1, favKeys)
}

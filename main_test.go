package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/buddy/fetch"
	"github.com/briangreenhill/buddy/internal/fetchtest"
)

// run executes one CLI invocation the way a shell would, sharing dir as
// the state directory across calls.
func run(t *testing.T, dir, apiURL string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--data-dir", dir, "--api-url", apiURL}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newRemote(t *testing.T) *fetchtest.Server {
	srv := fetchtest.New(t)
	srv.RequireAuth(true)
	srv.SeedDogs(fetchtest.Dogs(100)...)
	srv.SeedLocations(
		fetch.Location{ZipCode: "10001", City: "New York", State: "NY", County: "New York"},
		fetch.Location{ZipCode: "20002", City: "Washington", State: "DC"},
	)
	return srv
}

func TestCLISession(t *testing.T) {
	srv := newRemote(t)
	dir := t.TempDir()

	_, err := run(t, dir, srv.URL, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
	_, err = run(t, dir, srv.URL, "breeds")
	assert.ErrorIs(t, err, errNotLoggedIn)

	out, err := run(t, dir, srv.URL, "login", "--name", "Ada", "--email", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as Ada <ada@example.com>")

	out, err = run(t, dir, srv.URL, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada <ada@example.com>")

	// the remote cookie was restored from disk
	out, err = run(t, dir, srv.URL, "breeds")
	require.NoError(t, err)
	assert.Equal(t, "Beagle\nCollie\nHusky\n", out)

	out, err = run(t, dir, srv.URL, "logout")
	require.NoError(t, err)
	assert.Equal(t, "logged out\n", out)
	assert.Equal(t, 1, srv.Calls("logout"))

	_, err = run(t, dir, srv.URL, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestCLILoginRequiresEmail(t *testing.T) {
	srv := newRemote(t)
	_, err := run(t, t.TempDir(), srv.URL, "login", "--name", "Ada")
	require.Error(t, err)
	assert.Equal(t, 0, srv.Calls("login"))
}

func TestCLISearch(t *testing.T) {
	srv := newRemote(t)
	dir := t.TempDir()
	_, err := run(t, dir, srv.URL, "login", "--email", "ada@example.com")
	require.NoError(t, err)

	out, err := run(t, dir, srv.URL, "search", "--breed", "Beagle", "--sort", "name:desc")
	require.NoError(t, err)
	assert.Contains(t, out, "page 1 of 2, 34 dogs")
	assert.Contains(t, out, "New York, NY")
	assert.Equal(t, "name:desc", srv.LastQuery().Get("sort"))

	out, err = run(t, dir, srv.URL, "search", "--zip", "20002", "--age-min", "0", "--age-max", "0", "--page", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "dogs")
	assert.Equal(t, "0", srv.LastQuery().Get("ageMin"))

	_, err = run(t, dir, srv.URL, "search", "--sort", "color")
	assert.Error(t, err)
	_, err = run(t, dir, srv.URL, "search", "--age-min", "8", "--age-max", "2")
	assert.Error(t, err)
}

func TestCLIFavoritesAndMatch(t *testing.T) {
	srv := newRemote(t)
	srv.MatchWith("d2")
	dir := t.TempDir()
	_, err := run(t, dir, srv.URL, "login", "--email", "ada@example.com")
	require.NoError(t, err)

	_, err = run(t, dir, srv.URL, "match")
	require.Error(t, err)
	assert.Equal(t, 0, srv.Calls("match"))

	out, err := run(t, dir, srv.URL, "fav", "add", "d1", "d2")
	require.NoError(t, err)
	assert.Equal(t, "2 favorites\n", out)

	_, err = run(t, dir, srv.URL, "fav", "add", "nope")
	assert.Error(t, err)

	out, err = run(t, dir, srv.URL, "fav", "ls", "--sort", "name:desc")
	require.NoError(t, err)
	assert.Contains(t, out, "Dog1")
	assert.Contains(t, out, "Dog2")
	assert.Less(t, bytes.Index([]byte(out), []byte("Dog2")), bytes.Index([]byte(out), []byte("Dog1")))

	out, err = run(t, dir, srv.URL, "match")
	require.NoError(t, err)
	assert.Contains(t, out, "matched with Dog2!")
	assert.Contains(t, out, "Washington, DC")
	assert.ElementsMatch(t, []string{"d1", "d2"}, srv.LastBody("match"))

	out, err = run(t, dir, srv.URL, "fav", "rm", "d1")
	require.NoError(t, err)
	assert.Equal(t, "1 favorites\n", out)
}

func TestCLILocations(t *testing.T) {
	srv := newRemote(t)
	dir := t.TempDir()
	_, err := run(t, dir, srv.URL, "login", "--email", "ada@example.com")
	require.NoError(t, err)

	out, err := run(t, dir, srv.URL, "locations", "10001", "99999")
	require.NoError(t, err)
	assert.Contains(t, out, "New York")
	assert.Contains(t, out, "99999")
}

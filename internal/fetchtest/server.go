// Package fetchtest runs an in-process stand-in for the remote adoption
// service so packages can test against real HTTP round trips.
package fetchtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/briangreenhill/buddy/fetch"
)

// CookieName is the access cookie the fake hands out on login.
const CookieName = "fetch-access-token"

// Server is a fake adoption service backed by seeded dogs and locations.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	requireAuth bool
	matchID     string
	dogs        map[string]fetch.Dog
	order       []string
	locations   map[string]fetch.Location
	calls       map[string]int
	fail        map[string]int
	gates       map[string]chan struct{}
	lastQuery   url.Values
	lastBody    map[string][]string
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		dogs:      map[string]fetch.Dog{},
		locations: map[string]fetch.Location{},
		calls:     map[string]int{},
		fail:      map[string]int{},
		gates:     map[string]chan struct{}{},
		lastBody:  map[string][]string{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", s.wrap("login", false, s.handleLogin))
	mux.HandleFunc("/auth/logout", s.wrap("logout", false, s.handleLogout))
	mux.HandleFunc("/dogs/breeds", s.wrap("breeds", true, s.handleBreeds))
	mux.HandleFunc("/dogs/search", s.wrap("search_dogs", true, s.handleSearch))
	mux.HandleFunc("/dogs/match", s.wrap("match", true, s.handleMatch))
	mux.HandleFunc("/dogs", s.wrap("dogs", true, s.handleDogs))
	mux.HandleFunc("/locations/search", s.wrap("search_locations", true, s.handleSearchLocations))
	mux.HandleFunc("/locations", s.wrap("locations", true, s.handleLocations))
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Client returns a fetch client pointed at the server with its own cookie jar.
func (s *Server) Client(t testing.TB, opts ...fetch.Option) *fetch.Client {
	t.Helper()
	opts = append([]fetch.Option{fetch.WithBaseURL(s.URL), fetch.WithHTTPClient(s.Server.Client())}, opts...)
	c, err := fetch.New(opts...)
	if err != nil {
		t.Fatalf("fetch.New: %v", err)
	}
	return c
}

func (s *Server) SeedDogs(dogs ...fetch.Dog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range dogs {
		if _, ok := s.dogs[d.ID]; !ok {
			s.order = append(s.order, d.ID)
		}
		s.dogs[d.ID] = d
	}
}

func (s *Server) SeedLocations(locs ...fetch.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range locs {
		s.locations[l.ZipCode] = l
	}
}

// RequireAuth makes every non-auth endpoint answer 401 without the cookie.
func (s *Server) RequireAuth(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireAuth = on
}

// MatchWith makes /dogs/match return id instead of the first posted id.
func (s *Server) MatchWith(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchID = id
}

// Fail makes op answer with status until cleared with status 0.
func (s *Server) Fail(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.fail, op)
		return
	}
	s.fail[op] = status
}

// Block holds every request to op until the returned release func is called.
func (s *Server) Block(op string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[op] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.gates, op)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Calls counts the requests op has received.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Server) LastQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

// LastBody returns the JSON string array most recently posted to op.
func (s *Server) LastBody(op string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBody[op]
}

func (s *Server) wrap(op string, auth bool, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[op]++
		status := s.fail[op]
		gate := s.gates[op]
		requireAuth := s.requireAuth
		s.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if auth && requireAuth {
			if c, err := r.Cookie(CookieName); err != nil || c.Value == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds fetch.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email == "" {
		http.Error(w, "bad credentials", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "tok-" + creds.Email, Path: "/", HttpOnly: true})
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleBreeds(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	seen := map[string]bool{}
	var breeds []string
	for _, d := range s.dogs {
		if !seen[d.Breed] {
			seen[d.Breed] = true
			breeds = append(breeds, d.Breed)
		}
	}
	s.mu.Unlock()
	sort.Strings(breeds)
	writeJSON(w, breeds)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	s.lastQuery = q
	var matched []fetch.Dog
	for _, id := range s.order {
		d := s.dogs[id]
		if bs := q["breeds"]; len(bs) > 0 && !contains(bs, d.Breed) {
			continue
		}
		if zs := q["zipCodes"]; len(zs) > 0 && !contains(zs, d.ZipCode) {
			continue
		}
		if v, err := strconv.Atoi(q.Get("ageMin")); err == nil && d.Age < v {
			continue
		}
		if v, err := strconv.Atoi(q.Get("ageMax")); err == nil && d.Age > v {
			continue
		}
		matched = append(matched, d)
	}
	s.mu.Unlock()

	field, dir, _ := strings.Cut(q.Get("sort"), ":")
	sort.SliceStable(matched, func(i, j int) bool {
		c := compare(matched[i], matched[j], field)
		if dir == "desc" {
			c = -c
		}
		return c < 0
	})

	size := 25
	if v, err := strconv.Atoi(q.Get("size")); err == nil && v > 0 {
		size = v
	}
	from, _ := strconv.Atoi(q.Get("from"))
	resp := fetch.SearchResponse{Total: len(matched), ResultIDs: []string{}}
	for i := from; i < len(matched) && i < from+size; i++ {
		resp.ResultIDs = append(resp.ResultIDs, matched[i].ID)
	}
	if from+size < len(matched) {
		resp.Next = "/dogs/search?from=" + strconv.Itoa(from+size)
	}
	if from > 0 {
		resp.Prev = "/dogs/search?from=" + strconv.Itoa(max(0, from-size))
	}
	writeJSON(w, resp)
}

func compare(a, b fetch.Dog, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "age":
		return a.Age - b.Age
	default:
		return strings.Compare(a.Breed, b.Breed)
	}
}

func (s *Server) handleDogs(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.readIDs(w, r, "dogs")
	if !ok {
		return
	}
	s.mu.Lock()
	out := make([]fetch.Dog, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.dogs[id]; ok {
			out = append(out, d)
		}
	}
	s.mu.Unlock()
	writeJSON(w, out)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.readIDs(w, r, "match")
	if !ok {
		return
	}
	if len(ids) == 0 {
		http.Error(w, "empty id list", http.StatusBadRequest)
		return
	}
	id := ids[0]
	s.mu.Lock()
	if s.matchID != "" {
		id = s.matchID
	}
	s.mu.Unlock()
	writeJSON(w, map[string]string{"match": id})
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	zips, ok := s.readIDs(w, r, "locations")
	if !ok {
		return
	}
	s.mu.Lock()
	out := make([]*fetch.Location, 0, len(zips))
	for _, z := range zips {
		if l, ok := s.locations[z]; ok {
			out = append(out, &l)
		} else {
			out = append(out, nil)
		}
	}
	s.mu.Unlock()
	writeJSON(w, out)
}

func (s *Server) handleSearchLocations(w http.ResponseWriter, r *http.Request) {
	var p fetch.LocationSearchParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	var results []fetch.Location
	for _, l := range s.locations {
		if p.City != "" && !strings.EqualFold(l.City, p.City) {
			continue
		}
		if len(p.States) > 0 && !contains(p.States, l.State) {
			continue
		}
		results = append(results, l)
	}
	s.mu.Unlock()
	sort.Slice(results, func(i, j int) bool { return results[i].ZipCode < results[j].ZipCode })
	writeJSON(w, fetch.LocationSearchResponse{Results: results, Total: len(results)})
}

func (s *Server) readIDs(w http.ResponseWriter, r *http.Request, op string) ([]string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	var ids []string
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return nil, false
	}
	if len(ids) > fetch.MaxBulk {
		http.Error(w, "too many", http.StatusBadRequest)
		return nil, false
	}
	s.mu.Lock()
	s.lastBody[op] = ids
	s.mu.Unlock()
	return ids, true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Dogs builds n dogs with ids d1..dn spread over three breeds and zip codes.
func Dogs(n int) []fetch.Dog {
	breeds := []string{"Beagle", "Collie", "Husky"}
	zips := []string{"10001", "20002", "30003"}
	out := make([]fetch.Dog, n)
	for i := range out {
		out[i] = fetch.Dog{
			ID:      "d" + strconv.Itoa(i+1),
			Img:     "https://img.example/" + strconv.Itoa(i+1) + ".jpg",
			Name:    "Dog" + strconv.Itoa(i+1),
			Age:     i % 12,
			ZipCode: zips[i%len(zips)],
			Breed:   breeds[i%len(breeds)],
		}
	}
	return out
}

package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/briangreenhill/buddy/fetch"
	"github.com/briangreenhill/buddy/internal/favorites"
)

type favoritesResponse struct {
	Dogs  []fetch.Dog `json:"dogs"`
	Count int         `json:"count"`
}

func favoritesBody(dogs []fetch.Dog) favoritesResponse {
	if dogs == nil {
		dogs = []fetch.Dog{}
	}
	return favoritesResponse{Dogs: dogs, Count: len(dogs)}
}

// handleFavorites lists favorites, optionally sorted with ?sort=field[:desc].
func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	fav := wsFrom(r).Favorites
	field, dir, _ := strings.Cut(r.URL.Query().Get("sort"), ":")
	if field == "" {
		writeJSON(w, r, http.StatusOK, favoritesBody(fav.List()))
		return
	}
	writeJSON(w, r, http.StatusOK, favoritesBody(fav.Sorted(favorites.SortBy(field), dir == "desc")))
}

func (s *Server) handleFavoriteAdd(w http.ResponseWriter, r *http.Request) {
	var d fetch.Dog
	if err := decode(r, &d); err != nil {
		writeError(w, r, err)
		return
	}
	if d.ID == "" {
		writeError(w, r, errors.Join(errBadBody, errors.New("dog id is required")))
		return
	}
	fav := wsFrom(r).Favorites
	if err := fav.Add(r.Context(), d); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, favoritesBody(fav.List()))
}

func (s *Server) handleFavoriteRemove(w http.ResponseWriter, r *http.Request) {
	fav := wsFrom(r).Favorites
	if err := fav.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, favoritesBody(fav.List()))
}

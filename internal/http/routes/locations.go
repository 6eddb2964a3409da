package routes

import (
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/buddy/fetch"
)

type locationsResponse struct {
	Locations map[string]fetch.Location `json:"locations"`
	Partial   bool                      `json:"partial,omitempty"`
}

// handleLocations resolves ?zip=...&zip=... and reports partial results
// instead of failing when some lookups did not go through.
func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := wsFrom(r).Locations.Lookup(r.Context(), r.URL.Query()["zip"])
	resp := locationsResponse{Locations: locs}
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("partial location lookup")
		resp.Partial = true
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleLocationSearch(w http.ResponseWriter, r *http.Request) {
	var p fetch.LocationSearchParams
	if err := decode(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := wsFrom(r).Locations.Search(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Results == nil {
		res.Results = []fetch.Location{}
	}
	writeJSON(w, r, http.StatusOK, res)
}

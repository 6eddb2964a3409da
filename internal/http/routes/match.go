package routes

import (
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/buddy/internal/location"
	"github.com/briangreenhill/buddy/internal/match"
)

type matchResponse struct {
	Status match.Status      `json:"status"`
	Match  *location.Listing `json:"match,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	ws := wsFrom(r)
	l, err := ws.MatchFavorites(r.Context())
	if err != nil {
		st, prev := ws.CurrentMatch(r.Context())
		body := matchResponse{Status: st.Status, Match: prev, Error: err.Error()}
		hlog.FromRequest(r).Debug().Err(err).Msg("match request failed")
		writeJSON(w, r, statusFor(err), body)
		return
	}
	writeJSON(w, r, http.StatusOK, matchResponse{Status: match.Resolved, Match: l})
}

func (s *Server) handleCurrentMatch(w http.ResponseWriter, r *http.Request) {
	st, l := wsFrom(r).CurrentMatch(r.Context())
	body := matchResponse{Status: st.Status, Match: l}
	if st.Err != nil {
		body.Error = st.Err.Error()
	}
	writeJSON(w, r, http.StatusOK, body)
}

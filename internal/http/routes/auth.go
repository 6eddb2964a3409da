package routes

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/buddy/fetch"
	appmw "github.com/briangreenhill/buddy/internal/http/middleware"
)

type loginRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type identityResponse struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := wsFrom(r).Login(r.Context(), fetch.Credentials{Name: req.Name, Email: req.Email})
	if err != nil {
		writeError(w, r, err)
		return
	}
	// new identity, new session token
	if err := s.Sess.RenewToken(r.Context()); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("renew session token")
	}
	hlog.FromRequest(r).Info().Str("email", sess.Email).Msg("visitor logged in")
	writeJSON(w, r, http.StatusOK, identityResponse{Name: sess.Name, Email: sess.Email, ExpiresAt: sess.ExpiresAt})
}

// handleLogout always ends the local session. A failed remote logout is
// logged, not reported, since the visitor is signed out either way.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := wsFrom(r).Logout(r.Context()); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("logout incomplete")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if _, ok := appmw.IdentityFrom(r.Context()); !ok {
		writeJSON(w, r, http.StatusUnauthorized, errorResponse{Error: "login required"})
		return
	}
	sess, ok := wsFrom(r).Session.Current(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, errorResponse{Error: "login required"})
		return
	}
	writeJSON(w, r, http.StatusOK, identityResponse{Name: sess.Name, Email: sess.Email, ExpiresAt: sess.ExpiresAt})
}

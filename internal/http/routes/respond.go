package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/buddy/fetch"
	"github.com/briangreenhill/buddy/internal/match"
	"github.com/briangreenhill/buddy/internal/query"
	"github.com/briangreenhill/buddy/internal/session"
)

var errBadBody = errors.New("malformed request body")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode response")
	}
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, query.ErrValidation),
		errors.Is(err, match.ErrValidation),
		errors.Is(err, session.ErrValidation),
		errors.Is(err, fetch.ErrTooMany),
		errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case fetch.IsUnauthorized(err):
		return http.StatusUnauthorized
	case fetch.IsRemote(err), errors.Is(err, match.ErrRecordMissing), errors.As(err, new(*query.QueryError)):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ev := hlog.FromRequest(r).Warn()
	if status >= 500 {
		ev = hlog.FromRequest(r).Error()
	}
	ev.Err(err).Int("status", status).Msg("request failed")

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, r, status, errorResponse{Error: msg})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadBody, err)
	}
	return nil
}

package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey string

const IdentityKey contextKey = "identity"

// Identity is the signed-in visitor as seen by handlers.
type Identity struct {
	VisitorID string `json:"-"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// WithIdentity stores id in ctx for RequireIdentity and handlers.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok && id.Email != ""
}

// RequireIdentity answers 401 unless an active session put an identity in
// the request context.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "login required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

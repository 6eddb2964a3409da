package fetch

import (
	"context"
	"net/http"
)

// Login authenticates against the service. On success the service sets the
// HttpOnly fetch-access-token cookie, which the client's jar keeps.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	return c.do(ctx, "login", http.MethodPost, "/auth/login", nil, creds, nil)
}

// Logout invalidates the access cookie on the service side.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/auth/logout", nil, nil, nil)
}

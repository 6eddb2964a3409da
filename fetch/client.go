// Package fetch is the client for the remote adoption service: login,
// dog search and bulk record fetch, matching and zip code lookups.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the hosted adoption service.
const DefaultBaseURL = "https://frontend-take-home-service.fetch.com"

// MaxBulk is the remote cap on ids or zip codes per bulk request.
const MaxBulk = 100

// Client talks to the adoption service. It keeps the access cookie in its own jar.
type Client struct {
	rc      *resty.Client
	http    *http.Client
	baseURL *url.URL
	timeout time.Duration
	debug   bool
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses a copy of h as the underlying transport client. The copy
// gets its own cookie jar when h has none.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		cp := *h
		c.http = &cp
	}
}

// WithBaseURL points the client at another service root. Unparseable URLs are ignored.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			c.baseURL = u
		}
	}
}

// WithTimeout bounds each request. The default is 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for request logs and resty warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithDebug dumps every request and response through the client logger at
// debug level. It includes cookies, so keep it out of production.
func WithDebug(enabled bool) Option {
	return func(c *Client) { c.debug = enabled }
}

// New returns a client for the adoption service.
func New(opts ...Option) (*Client, error) {
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		baseURL: u,
		timeout: 30 * time.Second,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.http.Jar = jar
	}

	c.rc = resty.NewWithClient(c.http).
		SetBaseURL(c.baseURL.String()).
		SetTimeout(c.timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{l: c.log}).
		SetDebug(c.debug)
	return c, nil
}

// BaseURL returns the remote service root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Cookies returns the cookies the jar holds for the service, including the
// access token set by Login.
func (c *Client) Cookies() []*http.Cookie {
	return c.http.Jar.Cookies(c.baseURL)
}

// SetCookies restores cookies previously returned by Cookies.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	c.http.Jar.SetCookies(c.baseURL, cookies)
}

// ClearCookies drops every cookie for the service by installing a fresh jar.
func (c *Client) ClearCookies() {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return
	}
	c.rc.SetCookieJar(jar)
}

func (c *Client) do(ctx context.Context, op, method, p string, query url.Values, body, out any) error {
	req := c.rc.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, p)
	observe(op, resp, err, time.Since(start))
	if err != nil {
		c.log.Debug().Err(err).Str("op", op).Msg("remote call failed")
		return &RemoteError{Op: op, Err: err}
	}
	if !resp.IsSuccess() {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 512)}
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode(), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package fetch

import (
	"context"
	"errors"
	"net/http"
)

var errEmptyMatch = errors.New("match response carried no id")

// Breeds returns every breed name the service knows.
func (c *Client) Breeds(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.do(ctx, "breeds", http.MethodGet, "/dogs/breeds", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchDogs returns one page of matching ids plus the total match count.
func (c *Client) SearchDogs(ctx context.Context, p SearchParams) (*SearchResponse, error) {
	var out SearchResponse
	if err := c.do(ctx, "search_dogs", http.MethodGet, "/dogs/search", p.Values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Dogs fetches full records for up to MaxBulk ids. An empty id list makes no call.
func (c *Client) Dogs(ctx context.Context, ids []string) ([]Dog, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxBulk {
		return nil, ErrTooMany
	}
	var out []Dog
	if err := c.do(ctx, "dogs", http.MethodPost, "/dogs", nil, ids, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Match asks the service to pick one id out of ids.
func (c *Client) Match(ctx context.Context, ids []string) (string, error) {
	var out matchResponse
	if err := c.do(ctx, "match", http.MethodPost, "/dogs/match", nil, ids, &out); err != nil {
		return "", err
	}
	if out.Match == "" {
		return "", &RemoteError{Op: "match", StatusCode: http.StatusOK, Err: errEmptyMatch}
	}
	return out.Match, nil
}

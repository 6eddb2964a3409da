package fetch

import (
	"context"
	"net/http"
)

// Locations resolves up to MaxBulk zip codes. Unknown codes come back as null
// entries from the service and are dropped here.
func (c *Client) Locations(ctx context.Context, zips []string) ([]Location, error) {
	if len(zips) == 0 {
		return nil, nil
	}
	if len(zips) > MaxBulk {
		return nil, ErrTooMany
	}
	var raw []*Location
	if err := c.do(ctx, "locations", http.MethodPost, "/locations", nil, zips, &raw); err != nil {
		return nil, err
	}
	out := make([]Location, 0, len(raw))
	for _, l := range raw {
		if l == nil || l.ZipCode == "" {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

// SearchLocations searches by city, state or bounding box.
func (c *Client) SearchLocations(ctx context.Context, p LocationSearchParams) (*LocationSearchResponse, error) {
	var out LocationSearchResponse
	if err := c.do(ctx, "search_locations", http.MethodPost, "/locations/search", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

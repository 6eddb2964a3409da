package fetch

import (
	"net/url"
	"strconv"
)

// Dog is an adoptable animal record. Field names match the remote JSON.
type Dog struct {
	ID      string `json:"id"`
	Img     string `json:"img"`
	Name    string `json:"name"`
	Age     int    `json:"age"`
	ZipCode string `json:"zip_code"`
	Breed   string `json:"breed"`
}

// Location is a zip code with its place data.
type Location struct {
	ZipCode   string  `json:"zip_code"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	State     string  `json:"state"`
	County    string  `json:"county"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Credentials is the login body.
type Credentials struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SearchParams are the /dogs/search query parameters. Zero values are omitted.
type SearchParams struct {
	Breeds   []string
	ZipCodes []string
	AgeMin   *int
	AgeMax   *int
	Size     int
	From     int
	Sort     string // "field:direction"
}

// Values encodes p as the search query string. Unset fields are left out.
func (p SearchParams) Values() url.Values {
	v := url.Values{}
	for _, b := range p.Breeds {
		v.Add("breeds", b)
	}
	for _, z := range p.ZipCodes {
		v.Add("zipCodes", z)
	}
	if p.AgeMin != nil {
		v.Set("ageMin", strconv.Itoa(*p.AgeMin))
	}
	if p.AgeMax != nil {
		v.Set("ageMax", strconv.Itoa(*p.AgeMax))
	}
	if p.Size > 0 {
		v.Set("size", strconv.Itoa(p.Size))
	}
	if p.From > 0 {
		v.Set("from", strconv.Itoa(p.From))
	}
	if p.Sort != "" {
		v.Set("sort", p.Sort)
	}
	return v
}

// SearchResponse is one page of matching dog ids.
type SearchResponse struct {
	ResultIDs []string `json:"resultIds"`
	Total     int      `json:"total"`
	Next      string   `json:"next,omitempty"`
	Prev      string   `json:"prev,omitempty"`
}

type matchResponse struct {
	Match string `json:"match"`
}

// GeoBoundingBox accepts either top/left/bottom/right or a pair of corners.
type GeoBoundingBox struct {
	Top        *Coordinates `json:"top,omitempty"`
	Left       *Coordinates `json:"left,omitempty"`
	Bottom     *Coordinates `json:"bottom,omitempty"`
	Right      *Coordinates `json:"right,omitempty"`
	BottomLeft *Coordinates `json:"bottom_left,omitempty"`
	TopLeft    *Coordinates `json:"top_left,omitempty"`
}

// LocationSearchParams filters a location search.
type LocationSearchParams struct {
	City           string          `json:"city,omitempty"`
	States         []string        `json:"states,omitempty"`
	GeoBoundingBox *GeoBoundingBox `json:"geoBoundingBox,omitempty"`
	Size           int             `json:"size,omitempty"`
	From           int             `json:"from,omitempty"`
}

type LocationSearchResponse struct {
	Results []Location `json:"results"`
	Total   int        `json:"total"`
}

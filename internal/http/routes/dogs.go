package routes

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/briangreenhill/buddy/internal/location"
	"github.com/briangreenhill/buddy/internal/query"
)

type pageResponse struct {
	Dogs       []location.Listing `json:"dogs"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
	TotalPages int                `json:"totalPages"`
	Next       string             `json:"next,omitempty"`
	Prev       string             `json:"prev,omitempty"`
}

type criteriaResponse struct {
	Breed    string   `json:"breed,omitempty"`
	ZipCodes []string `json:"zipCodes,omitempty"`
	AgeMin   *int     `json:"ageMin,omitempty"`
	AgeMax   *int     `json:"ageMax,omitempty"`
	Sort     string   `json:"sort"`
	Page     int      `json:"page"`
}

type browseResponse struct {
	Criteria criteriaResponse `json:"criteria"`
	Result   *pageResponse    `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// browseRequest changes only the fields present.
type browseRequest struct {
	Breed    *string   `json:"breed"`
	ZipCodes *[]string `json:"zipCodes"`
	AgeMin   *int      `json:"ageMin"`
	AgeMax   *int      `json:"ageMax"`
	Sort     *string   `json:"sort"`
	Page     *int      `json:"page"`
	// ClearAge drops both age bounds.
	ClearAge bool `json:"clearAge"`
}

func (s *Server) handleBreeds(w http.ResponseWriter, r *http.Request) {
	breeds, err := wsFrom(r).Engine.Breeds(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, breeds)
}

// handleDogs runs a one-off query from the URL without touching browse state.
func (s *Server) handleDogs(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ws := wsFrom(r)
	res, err := ws.Engine.Query(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.page(r, res))
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	s.refreshBrowse(w, r)
}

func (s *Server) handleBrowseUpdate(w http.ResponseWriter, r *http.Request) {
	var req browseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := query.Change{
		Breed:    req.Breed,
		ZipCodes: req.ZipCodes,
		AgeMin:   req.AgeMin,
		AgeMax:   req.AgeMax,
		ClearAge: req.ClearAge,
		Page:     req.Page,
	}
	if req.Sort != nil {
		srt, err := query.ParseSort(*req.Sort)
		if err != nil {
			writeError(w, r, err)
			return
		}
		c.Sort = &srt
	}
	// all or nothing: a rejected field leaves every criterion as it was
	if err := wsFrom(r).Browser.Apply(c); err != nil {
		writeError(w, r, err)
		return
	}
	s.refreshBrowse(w, r)
}

func (s *Server) refreshBrowse(w http.ResponseWriter, r *http.Request) {
	b := wsFrom(r).Browser
	_, err := b.Refresh(r.Context())
	v := b.View()
	out := browseResponse{Criteria: criteriaResponse{
		Breed:    v.Filter.Breed,
		ZipCodes: v.Filter.ZipCodes,
		AgeMin:   v.Filter.AgeMin,
		AgeMax:   v.Filter.AgeMax,
		Sort:     v.Sort.String(),
		Page:     v.Page,
	}}
	if v.Result != nil {
		p := s.page(r, v.Result)
		out.Result = &p
	}
	if err != nil {
		out.Error = err.Error()
		writeJSON(w, r, statusFor(err), out)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) page(r *http.Request, res *query.Result) pageResponse {
	return pageResponse{
		Dogs:       wsFrom(r).Listings(r.Context(), res),
		Total:      res.Total,
		Page:       res.Key.Page(),
		PageSize:   query.PageSize,
		TotalPages: res.TotalPages,
		Next:       res.Next,
		Prev:       res.Prev,
	}
}

func keyFromQuery(q url.Values) (query.Key, error) {
	f := query.Filter{Breed: q.Get("breed"), ZipCodes: q["zip"]}
	var err error
	if f.AgeMin, err = optInt(q, "ageMin"); err != nil {
		return query.Key{}, err
	}
	if f.AgeMax, err = optInt(q, "ageMax"); err != nil {
		return query.Key{}, err
	}
	srt, err := query.ParseSort(q.Get("sort"))
	if err != nil {
		return query.Key{}, err
	}
	page := 1
	if p, err := optInt(q, "page"); err != nil {
		return query.Key{}, err
	} else if p != nil {
		page = *p
	}
	return query.NewKey(f, srt, page)
}

func optInt(q url.Values, name string) (*int, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", query.ErrInvalidCriteria, name)
	}
	return &v, nil
}

package query

import (
	"context"
	"sync"
)

// View is what the browser currently shows.
type View struct {
	Filter  Filter
	Sort    Sort
	Page    int
	Result  *Result
	Err     error
	Loading bool
}

// Browser holds one visitor's criteria and the last page shown for them.
// Any change to the filter or sort sends the visitor back to page 1.
type Browser struct {
	engine *Engine

	mu      sync.Mutex
	filter  Filter
	sort    Sort
	page    int
	gen     uint64
	result  *Result
	err     error
	loading bool
}

// NewBrowser starts on page 1 with the default sort and no filter.
func NewBrowser(e *Engine) *Browser {
	return &Browser{engine: e, sort: DefaultSort, page: 1}
}

// changed bumps the generation so in-flight refreshes stop publishing.
// Callers hold b.mu.
func (b *Browser) changed(resetPage bool) {
	b.gen++
	b.loading = false
	if resetPage {
		b.page = 1
	}
}

// SetBreed filters by one breed. An empty breed matches all.
func (b *Browser) SetBreed(breed string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.filter
	next.Breed = breed
	if next.Equal(b.filter) {
		return
	}
	b.filter = next.normalize()
	b.changed(true)
}

func (b *Browser) SetZipCodes(zips []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.filter
	next.ZipCodes = zips
	if next.Equal(b.filter) {
		return
	}
	b.filter = next.normalize()
	b.changed(true)
}

// SetAgeRange rejects lo > hi and leaves the criteria untouched.
func (b *Browser) SetAgeRange(lo, hi *int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.filter
	next.AgeMin, next.AgeMax = lo, hi
	next = next.normalize()
	if err := next.validate(); err != nil {
		return err
	}
	if next.Equal(b.filter) {
		return nil
	}
	b.filter = next
	b.changed(true)
	return nil
}

// SetSort rejects unknown fields and directions.
func (b *Browser) SetSort(s Sort) error {
	if err := s.validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if s == b.sort {
		return nil
	}
	b.sort = s
	b.changed(true)
	return nil
}

// SetFilter replaces the whole filter at once.
func (b *Browser) SetFilter(f Filter) error {
	f = f.normalize()
	if err := f.validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if f.Equal(b.filter) {
		return nil
	}
	b.filter = f
	b.changed(true)
	return nil
}

// Change is a partial criteria update. Nil fields keep their current value.
type Change struct {
	Breed    *string
	ZipCodes *[]string
	AgeMin   *int
	AgeMax   *int
	// ClearAge drops both age bounds and wins over AgeMin and AgeMax.
	ClearAge bool
	Sort     *Sort
	Page     *int
}

// Apply validates c against the current criteria and commits all of it or
// none of it. A filter or sort change resets the page unless c.Page is set.
func (b *Browser) Apply(c Change) error {
	if c.Sort != nil {
		if err := c.Sort.validate(); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.filter
	if c.Breed != nil {
		next.Breed = *c.Breed
	}
	if c.ZipCodes != nil {
		next.ZipCodes = *c.ZipCodes
	}
	switch {
	case c.ClearAge:
		next.AgeMin, next.AgeMax = nil, nil
	default:
		if c.AgeMin != nil {
			next.AgeMin = c.AgeMin
		}
		if c.AgeMax != nil {
			next.AgeMax = c.AgeMax
		}
	}
	next = next.normalize()
	if err := next.validate(); err != nil {
		return err
	}
	srt := b.sort
	if c.Sort != nil {
		srt = *c.Sort
	}

	reset := !next.Equal(b.filter) || srt != b.sort
	page := b.page
	if reset {
		page = 1
	}
	if c.Page != nil {
		page = max(*c.Page, 1)
	}
	if !reset && page == b.page {
		return nil
	}
	b.filter, b.sort, b.page = next, srt, page
	b.changed(false)
	return nil
}

// SetPage moves to page n, clamped to 1. The criteria are kept.
func (b *Browser) SetPage(n int) {
	if n < 1 {
		n = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n == b.page {
		return
	}
	b.page = n
	b.changed(false)
}

// Page is the effective page number.
func (b *Browser) Page() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page
}

// Key is the key for the current criteria.
func (b *Browser) Key() (Key, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return NewKey(b.filter, b.sort, b.page)
}

// Refresh runs the query for the current criteria. The result is published
// to the view only if the criteria did not change meanwhile; a superseded
// result still lands in the engine cache.
func (b *Browser) Refresh(ctx context.Context) (*Result, error) {
	b.mu.Lock()
	key, err := NewKey(b.filter, b.sort, b.page)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	b.gen++
	gen := b.gen
	b.loading = true
	b.mu.Unlock()

	r, err := b.engine.Query(ctx, key)

	b.mu.Lock()
	if gen == b.gen {
		b.loading = false
		if err != nil {
			b.err = err
		} else {
			b.result, b.err = r, nil
		}
	}
	b.mu.Unlock()
	return r, err
}

// View is a snapshot of the criteria and the last published page.
func (b *Browser) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return View{
		Filter:  b.filter.normalize(),
		Sort:    b.sort,
		Page:    b.page,
		Result:  b.result,
		Err:     b.err,
		Loading: b.loading,
	}
}

// Reset restores default criteria and clears the view.
func (b *Browser) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = Filter{}
	b.sort = DefaultSort
	b.page = 1
	b.result, b.err, b.loading = nil, nil, false
	b.gen++
}

// Package query turns filter, sort and page criteria into cached,
// deduplicated searches against the remote catalog.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/briangreenhill/buddy/cache"
	"github.com/briangreenhill/buddy/fetch"
)

// PageSize is the fixed number of records per page.
const PageSize = 32

var (
	// ErrValidation is the base of every rejected-before-call error here.
	ErrValidation = errors.New("validation error")
	// ErrInvalidCriteria wraps ErrValidation for bad filter or sort input.
	ErrInvalidCriteria = fmt.Errorf("%w: invalid search criteria", ErrValidation)
)

// Field is a sortable dog attribute.
type Field string

const (
	FieldBreed Field = "breed"
	FieldName  Field = "name"
	FieldAge   Field = "age"
)

// Direction is asc or desc.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort orders search results.
type Sort struct {
	Field     Field
	Direction Direction
}

// DefaultSort is breed ascending.
var DefaultSort = Sort{Field: FieldBreed, Direction: Asc}

func (s Sort) String() string { return string(s.Field) + ":" + string(s.Direction) }

func (s Sort) validate() error {
	switch s.Field {
	case FieldBreed, FieldName, FieldAge:
	default:
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidCriteria, s.Field)
	}
	switch s.Direction {
	case Asc, Desc:
	default:
		return fmt.Errorf("%w: unknown sort direction %q", ErrInvalidCriteria, s.Direction)
	}
	return nil
}

// ParseSort reads "field:direction". An empty string is DefaultSort and a
// missing direction means ascending.
func ParseSort(s string) (Sort, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return DefaultSort, nil
	}
	f, d, _ := strings.Cut(s, ":")
	out := Sort{Field: Field(f), Direction: Direction(d)}
	if out.Direction == "" {
		out.Direction = Asc
	}
	if err := out.validate(); err != nil {
		return Sort{}, err
	}
	return out, nil
}

// Filter narrows the search. A nil age bound is unbounded.
type Filter struct {
	Breed    string
	ZipCodes []string
	AgeMin   *int
	AgeMax   *int
}

// normalize returns a copy with the breed trimmed and the zip codes trimmed,
// deduped and sorted.
func (f Filter) normalize() Filter {
	out := Filter{Breed: strings.TrimSpace(f.Breed)}
	out.ZipCodes = NormalizeZips(f.ZipCodes)
	if f.AgeMin != nil {
		v := *f.AgeMin
		out.AgeMin = &v
	}
	if f.AgeMax != nil {
		v := *f.AgeMax
		out.AgeMax = &v
	}
	return out
}

func (f Filter) validate() error {
	if f.AgeMin != nil && *f.AgeMin < 0 {
		return fmt.Errorf("%w: ageMin must not be negative", ErrInvalidCriteria)
	}
	if f.AgeMin != nil && f.AgeMax != nil && *f.AgeMin > *f.AgeMax {
		return fmt.Errorf("%w: ageMin %d exceeds ageMax %d", ErrInvalidCriteria, *f.AgeMin, *f.AgeMax)
	}
	return nil
}

// Equal compares normalized filters.
func (f Filter) Equal(o Filter) bool {
	a, b := f.normalize(), o.normalize()
	if a.Breed != b.Breed || !intPtrEqual(a.AgeMin, b.AgeMin) || !intPtrEqual(a.AgeMax, b.AgeMax) {
		return false
	}
	if len(a.ZipCodes) != len(b.ZipCodes) {
		return false
	}
	for i := range a.ZipCodes {
		if a.ZipCodes[i] != b.ZipCodes[i] {
			return false
		}
	}
	return true
}

// NormalizeZips trims, drops empties, dedups and sorts.
func NormalizeZips(zips []string) []string {
	if len(zips) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(zips))
	out := make([]string, 0, len(zips))
	for _, z := range zips {
		z = strings.TrimSpace(z)
		if z == "" {
			continue
		}
		if _, ok := seen[z]; ok {
			continue
		}
		seen[z] = struct{}{}
		out = append(out, z)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// Key is a normalized (filter, sort, page) triple. Build it with NewKey.
type Key struct {
	filter Filter
	sort   Sort
	page   int
	s      string
}

// NewKey normalizes and validates its input. Keys built from the same
// content in any order have the same String().
func NewKey(f Filter, s Sort, page int) (Key, error) {
	if s == (Sort{}) {
		s = DefaultSort
	}
	if err := s.validate(); err != nil {
		return Key{}, err
	}
	f = f.normalize()
	if err := f.validate(); err != nil {
		return Key{}, err
	}
	if page < 1 {
		page = 1
	}
	k := Key{filter: f, sort: s, page: page}
	k.s = cache.ExactKey("dogs/search", k.params())
	return k, nil
}

func (k Key) Filter() Filter { return k.filter.normalize() }
func (k Key) Sort() Sort     { return k.sort }
func (k Key) Page() int      { return k.page }

// From is the zero-based offset of the page.
func (k Key) From() int { return (k.page - 1) * PageSize }

// String identifies the key. Distinct criteria never share a string.
func (k Key) String() string { return k.s }

// WithPage returns the same criteria on another page.
func (k Key) WithPage(page int) Key {
	out, _ := NewKey(k.filter, k.sort, page)
	return out
}

func (k Key) params() map[string][]string {
	p := map[string][]string{
		"sort": {k.sort.String()},
		"page": {strconv.Itoa(k.page)},
	}
	if k.filter.Breed != "" {
		p["breed"] = []string{k.filter.Breed}
	}
	if len(k.filter.ZipCodes) > 0 {
		p["zip"] = k.filter.ZipCodes
	}
	if k.filter.AgeMin != nil {
		p["ageMin"] = []string{strconv.Itoa(*k.filter.AgeMin)}
	}
	if k.filter.AgeMax != nil {
		p["ageMax"] = []string{strconv.Itoa(*k.filter.AgeMax)}
	}
	return p
}

// SearchParams is the remote request for this key.
func (k Key) SearchParams() fetch.SearchParams {
	p := fetch.SearchParams{
		ZipCodes: append([]string(nil), k.filter.ZipCodes...),
		AgeMin:   k.filter.AgeMin,
		AgeMax:   k.filter.AgeMax,
		Size:     PageSize,
		From:     k.From(),
		Sort:     k.sort.String(),
	}
	if k.filter.Breed != "" {
		p.Breeds = []string{k.filter.Breed}
	}
	return p
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/briangreenhill/buddy/internal/storage"
)

// Sweep erases every persisted session in st that has expired by now, along
// with any extra per-visitor keys named in also (remote cookies, say).
// Sessions are found by their key suffix, so one call covers every
// namespace. It returns the number of sessions erased.
func Sweep(ctx context.Context, st storage.ListStore, now time.Time, also ...string) (int, error) {
	keys, err := st.Keys(ctx, "")
	if err != nil {
		return 0, err
	}

	type pair struct{ user, expiry bool }
	found := map[string]*pair{}
	for _, k := range keys {
		if prefix, ok := cutKey(k, UserKey); ok {
			p := found[prefix]
			if p == nil {
				p = &pair{}
				found[prefix] = p
			}
			p.user = true
		}
		if prefix, ok := cutKey(k, ExpiryKey); ok {
			p := found[prefix]
			if p == nil {
				p = &pair{}
				found[prefix] = p
			}
			p.expiry = true
		}
	}

	var (
		n    int
		errs []error
	)
	for prefix, p := range found {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		expired := !p.user || !p.expiry
		if !expired {
			raw, err := st.Get(ctx, prefix+ExpiryKey)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				expired = true
			case err != nil:
				errs = append(errs, err)
				continue
			default:
				exp, perr := ParseExpiry(raw)
				expired = perr != nil || !now.Before(exp)
			}
		}
		if !expired {
			continue
		}
		doomed := append([]string{prefix + UserKey, prefix + ExpiryKey}, prefixed(prefix, also)...)
		var derr error
		for _, k := range doomed {
			derr = errors.Join(derr, st.Delete(ctx, k))
		}
		if derr != nil {
			errs = append(errs, derr)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// cutKey matches key == name or key == prefix + "/" + name and returns the
// prefix including its trailing slash.
func cutKey(key, name string) (string, bool) {
	if key == name {
		return "", true
	}
	if strings.HasSuffix(key, "/"+name) {
		return strings.TrimSuffix(key, name), true
	}
	return "", false
}

func prefixed(prefix string, keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = prefix + k
	}
	return out
}

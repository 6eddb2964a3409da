// Package cache holds the cache primitives shared by the query engine and the
// location enrichment cache: stable key generation and a bounded LRU.
package cache

import (
	"crypto/md5"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// MaxKeyLen is the length above which KeyFor hashes the key.
const MaxKeyLen = 200

var unsafeKeyChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"?", "_",
	"&", "_",
	"#", "_",
	"<", "_",
	">", "_",
	"|", "_",
	"*", "_",
	"\"", "_",
	" ", "_",
)

// KeyFor builds a stable key from path and params. Params are sorted so the
// same set always produces the same key regardless of construction order.
// Values may hold several entries and are joined in the given order, so
// callers that want set semantics should sort them first.
func KeyFor(path string, params map[string][]string) string {
	parts := make([]string, 0, len(params))
	for k, vs := range params {
		if len(vs) == 0 {
			continue
		}
		parts = append(parts, k+"="+strings.Join(vs, ","))
	}
	sort.Strings(parts)

	key := strings.Trim(path, "/")
	if len(parts) > 0 {
		key = fmt.Sprintf("%s__%s", key, strings.Join(parts, "__"))
	}
	return sanitize(key)
}

// ExactKey builds a key from path and params that differs whenever the
// params differ. Values are percent-encoded rather than sanitized, so the
// result is meant for in-memory keys, not filenames.
func ExactKey(path string, params map[string][]string) string {
	v := url.Values{}
	for k, vs := range params {
		for _, x := range vs {
			v.Add(k, x)
		}
	}
	key := strings.Trim(path, "/")
	if enc := v.Encode(); enc != "" {
		key += "?" + enc
	}
	return key
}

// HashKey returns the hashed form KeyFor uses for over-long keys.
func HashKey(key string) string {
	return fmt.Sprintf("hash_%x", md5.Sum([]byte(key)))
}

func sanitize(key string) string {
	if len(key) > MaxKeyLen {
		return HashKey(key)
	}
	// "=" and "," stay readable; everything else that would upset a
	// filename or a redis pattern goes.
	return unsafeKeyChars.Replace(key)
}

package cache

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key.
const KeyPrefix = "mangadex"

// Key identifies a cached response.
type Key struct {
	// Path is the request path, e.g. "/cover/5f0e...".
	Path string

	// Query holds the request query parameters.
	Query url.Values
}

// KeyForURL builds the key of a request URL.
func KeyForURL(u *url.URL) Key {
	return Key{Path: u.Path, Query: u.Query()}
}

// String returns a deterministic key:
//
//	mangadex:author:ids[]=b1
//	mangadex:cover/5f0e
func (k Key) String() string {
	parts := []string{KeyPrefix}

	if p := strings.Trim(k.Path, "/"); p != "" {
		parts = append(parts, p)
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), k.Query[name]...)
			sort.Strings(values)
			parts = append(parts, name+"="+strings.Join(values, ","))
		}
	}

	return strings.Join(parts, ":")
}

// IsLookup reports whether the request path is a cover or author lookup.
// Only lookups are cached.
func IsLookup(p string) bool {
	dir, base := path.Split(strings.TrimSuffix(p, "/"))
	return base == "author" || strings.HasSuffix(dir, "/cover/")
}

package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached ISS response.
type Key struct {
	// Path is the request path (e.g. "/iss/engines/stock/markets/shares/securities.json").
	Path string

	// Query holds the request query parameters.
	Query url.Values

	// Authenticated separates responses fetched with a passport cookie, which
	// may carry data anonymous requests do not see.
	Authenticated bool
}

// KeyFromURL builds the key of a request URL.
func KeyFromURL(u *url.URL, authenticated bool) Key {
	return Key{
		Path:          u.Path,
		Query:         u.Query(),
		Authenticated: authenticated,
	}
}

// String generates a deterministic key string.
// Format: iss:path:query1=val1:query2=val2[:auth]
//
// Example:
//
//	iss:iss/history/engines/stock/markets/shares/securities/SBER.csv:iss.only=history:start=100
func (k Key) String() string {
	parts := []string{"iss"}

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
			for _, v := range values {
				parts = append(parts, name+"="+v)
			}
		}
	}

	if k.Authenticated {
		parts = append(parts, "auth")
	}

	return strings.Join(parts, ":")
}

// Package fingerprint derives the cache identity of an HTTP request.
//
// Two requests with the same method and normalized URL share a fingerprint
// regardless of headers or body, so they are cache-equivalent.
package fingerprint

import (
	"crypto/md5"
	"fmt"
	"net/url"
	"strings"
)

// Fingerprint is the canonical string form: "METHOD host/path?query".
type Fingerprint string

// For computes the fingerprint for a method and URL.
//
// Normalization: method upper-cased, scheme and host lower-cased, default
// ports stripped, query parameters sorted, fragment dropped.
func For(method string, u *url.URL) Fingerprint {
	host := strings.ToLower(u.Host)
	switch strings.ToLower(u.Scheme) {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')
	b.WriteString(host)
	b.WriteString(path)
	if u.RawQuery != "" {
		// url.Values.Encode sorts keys, giving a stable order.
		if q, err := url.ParseQuery(u.RawQuery); err == nil {
			b.WriteByte('?')
			b.WriteString(q.Encode())
		} else {
			b.WriteByte('?')
			b.WriteString(u.RawQuery)
		}
	}
	return Fingerprint(b.String())
}

// Parse is a convenience wrapper for callers holding a raw URL string.
func Parse(method, rawURL string) (Fingerprint, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return For(method, u), nil
}

// Key returns a form suitable as a persistent store key. Very long
// fingerprints are hashed to keep key sizes bounded.
func (f Fingerprint) Key() string {
	if len(f) > 200 {
		return fmt.Sprintf("fp_%x", md5.Sum([]byte(f)))
	}
	return string(f)
}

func (f Fingerprint) String() string { return string(f) }

package model

import (
	"net/url"
	"strings"
)

// canonicalURL lowercases the host, strips scheme/query/fragment and any
// trailing slash, so EXACT_URL dedup compares on the same representation
// regardless of how a source recorded the link.
func canonicalURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return strings.ToLower(strings.TrimSuffix(trimmed, "/"))
	}
	host := strings.ToLower(u.Host)
	path := strings.TrimSuffix(u.Path, "/")
	return host + path
}

package httpx

import (
	"net/url"
	"strings"
)

// ResolveURL makes href absolute against base. Empty or unparsable hrefs
// resolve to "".
func ResolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		if !ref.IsAbs() {
			return ""
		}
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// QueryParam returns the value of key in the query string of rawURL. It
// accepts protocol-relative and path-only URLs.
func QueryParam(rawURL, key string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}

// Package urlutil normalises target URLs so equivalent spellings compare equal.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotHTTP is returned for URLs that are relative or use a non-http(s) scheme.
var ErrNotHTTP = errors.New("url must be an absolute http or https url")

// Canonicalize parses a raw URL string and returns its canonical form.
// The canonicalization rules are:
//  1. Scheme and host are lowercased.
//  2. Default ports (80 for http, 443 for https) are stripped.
//  3. The URL fragment (#...) is removed.
//  4. A trailing slash is removed, unless it's the root path.
//
// The query string is kept verbatim: registration sites route on it.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	return canonical(u)
}

// Resolve resolves ref against base and canonicalises the result.
// It is used for href attributes scraped from a page.
func Resolve(base *url.URL, ref string) (string, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("failed to parse reference: %w", err)
	}
	if base != nil {
		r = base.ResolveReference(r)
	}
	return canonical(r)
}

func canonical(u *url.URL) (string, error) {
	if !u.IsAbs() {
		return "", ErrNotHTTP
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrNotHTTP
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host")
	}

	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Hostname()
	}

	u.Fragment = ""
	u.RawFragment = ""

	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	}

	return u.String(), nil
}

// Package urlutil normalizes user-supplied request targets.
package urlutil

import (
	"net/url"
	"strings"
)

// Normalize prepends "http://" when the target has no scheme and strips
// superfluous default ports (:80 for http, :443 for https). Targets that
// fail to parse are returned trimmed and with the scheme default applied,
// but otherwise unchanged, so the HTTP client surfaces the error
// uniformly. Normalize is idempotent.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}

	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		host := u.Hostname()
		if strings.Contains(host, ":") {
			// IPv6 literal: Hostname strips the brackets.
			host = "[" + host + "]"
		}
		u.Host = host
		return u.String()
	}

	return s
}

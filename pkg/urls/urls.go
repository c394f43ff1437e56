// Package urls validates and normalizes media page URLs.
package urls

import (
	"net/url"
	"slices"
	"strings"
)

const redactedInvalid = "invalid-url"

var allowedSchemes = []string{"http", "https"}

// IsURLValid reports whether raw is an absolute http(s) URL with a host.
func IsURLValid(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}

	return slices.Contains(allowedSchemes, u.Scheme)
}

// Normalize trims surrounding spaces and lowercases the host.
// Input that does not parse as an absolute URL is only trimmed.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Host = strings.ToLower(u.Host)

	return u.String()
}

// Redact drops the userinfo of raw so it can be logged or used as a metric label.
// Input that does not parse is replaced entirely.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redactedInvalid
	}

	u.User = nil

	return u.String()
}

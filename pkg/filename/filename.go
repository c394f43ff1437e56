// Package filename turns arbitrary titles into filesystem-safe names.
package filename

import (
	"strings"
	"unicode"
)

// Clean keeps letters, digits, spaces, hyphens and underscores and drops
// everything else, then trims surrounding spaces.
// Example: "My Video: Part #1!" => "My Video Part 1"
func Clean(name string) string {
	var b strings.Builder

	b.Grow(len(name))

	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}

// CleanOr is Clean with a fallback for names that sanitize to nothing.
func CleanOr(name, fallback string) string {
	if cleaned := Clean(name); cleaned != "" {
		return cleaned
	}

	return fallback
}

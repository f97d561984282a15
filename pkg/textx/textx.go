// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeSpace lowercases s and collapses runs of whitespace to one space.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Truncate bounds s to max runes, appending marker when text is cut.
// The marker counts against the bound so the result never exceeds max.
func Truncate(s string, max int, marker string) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	m := []rune(marker)
	if len(m) >= max {
		return string(m[:max])
	}
	return string(runes[:max-len(m)]) + marker
}

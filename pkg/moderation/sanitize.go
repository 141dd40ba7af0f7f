package moderation

import (
	"html"
	"strings"
)

// MaxStoredLen caps the length of stored comment content, in runes,
// measured after escaping.
const MaxStoredLen = 1000

// SanitizeContent prepares accepted text for storage: trims surrounding
// whitespace, escapes the five HTML-reserved characters and truncates
// to MaxStoredLen. This is the only path by which submitted text
// reaches persistence; raw input is never stored verbatim.
func SanitizeContent(s string) string {
	s = strings.TrimSpace(s)
	s = html.EscapeString(s)

	runes := []rune(s)
	if len(runes) > MaxStoredLen {
		s = string(runes[:MaxStoredLen])
	}

	return s
}

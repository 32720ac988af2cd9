package validators

import (
	"strings"
	"unicode"
)

// SanitizeString drops control characters, collapses whitespace runs to one
// space and keeps at most maxLen runes. maxLen <= 0 disables truncation.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	space := false
	for _, r := range strings.TrimSpace(input) {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := b.String()
	if maxLen <= 0 {
		return out
	}
	runes := 0
	for i := range out {
		if runes == maxLen {
			return strings.TrimRight(out[:i], " ")
		}
		runes++
	}
	return out
}

// Package merchant normalizes free-text merchant strings into grouping keys.
package merchant

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonicalize maps raw merchant or description text to its canonical key:
// lowercase, diacritics stripped, every run of characters that are neither
// letters nor digits collapsed to one space, trimmed.
// The boolean is false when nothing remains.
func Canonicalize(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}

	// A fresh chain per call; transform.Chain is not safe for concurrent use.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, raw)
	if err != nil {
		stripped = raw
	}

	var b strings.Builder
	b.Grow(len(stripped))
	pendingSpace := false
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSpace = true
	}

	key := b.String()
	if key == "" {
		return "", false
	}
	return key, true
}

// Key returns the canonical key for raw, or the empty string.
func Key(raw string) string {
	key, _ := Canonicalize(raw)
	return key
}

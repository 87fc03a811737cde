package analysis

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxDescriptionRunes bounds the description sent to the analysis service.
const MaxDescriptionRunes = 200

// Sanitize strips ASCII control characters, NFC normalizes, trims and
// truncates s to MaxDescriptionRunes runes.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(norm.NFC.String(s))
	if utf8.RuneCountInString(s) <= MaxDescriptionRunes {
		return s
	}
	return string([]rune(s)[:MaxDescriptionRunes])
}

package util

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeWhitespace trims and collapses Unicode whitespace, including U+3000 and NBSP, to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Fold maps text to a comparison form: NFKC width folding plus Unicode case folding,
// so "ＴＲＯＵＢＬＥ" and "trouble" compare equal.
func Fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

// ContainsAnyCaseInsensitive returns true if text contains any of the needles (case-insensitive).
func ContainsAnyCaseInsensitive(text string, needles []string) bool {
	lt := Fold(text)
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(lt, Fold(n)) {
			return true
		}
	}
	return false
}

// RuneLen counts characters the way the title budget does.
func RuneLen(s string) int { return utf8.RuneCountInString(s) }

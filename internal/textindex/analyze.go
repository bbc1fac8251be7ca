package textindex

import (
	"strings"
	"unicode"
)

// Analyze lowercases text and splits it into letter and digit runs. Both the
// stored token streams and query terms go through it, so every backend sees
// the same vocabulary.
func Analyze(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// analyzed is Analyze joined back into a single space separated string.
func analyzed(text string) string {
	return strings.Join(Analyze(text), " ")
}

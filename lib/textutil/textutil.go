package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases a display name and collapses separators so names
// coming from slugs ("david_raya", "David-Raya") compare equal to "david raya".
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	name = whitespaceRegex.ReplaceAllString(name, " ")
	return strings.Trim(name, " ")
}

// TitleCase replaces underscores with spaces and capitalizes the first letter
// of every word.
func TitleCase(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

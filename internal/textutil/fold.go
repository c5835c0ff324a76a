package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var spanishLower = cases.Lower(language.Spanish)

// Lower lowercases value with Spanish casing rules.
func Lower(value string) string {
	return spanishLower.String(value)
}

// Fold lowercases value, strips combining accents and collapses whitespace so
// "Audio  Vacío" and "audio vacio" compare equal.
func Fold(value string) string {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		value,
	)
	if err != nil {
		stripped = value
	}
	return strings.Join(strings.Fields(Lower(stripped)), " ")
}

// ContainsAnyFolded reports whether any phrase appears in text after both are folded.
func ContainsAnyFolded(text string, phrases []string) bool {
	folded := Fold(text)
	if folded == "" {
		return false
	}
	for _, phrase := range phrases {
		if p := Fold(phrase); p != "" && strings.Contains(folded, p) {
			return true
		}
	}
	return false
}

// Clip returns at most limit runes of value.
func Clip(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range value {
		if count == limit {
			return value[:i]
		}
		count++
	}
	return value
}

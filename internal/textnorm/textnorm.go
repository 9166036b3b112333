// Package textnorm normalizes recitation text for comparison. Normalization
// strips the variance that speech-to-text output carries — vowel pointing,
// punctuation, casing, irregular whitespace — so that downstream similarity
// scoring compares only the consonantal/lexical skeleton of an utterance.
//
// Normalize is total and idempotent: it never fails, and applying it twice
// yields the same result as applying it once.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns text prepared for similarity comparison:
//
//  1. Unicode NFD decomposition, then removal of all combining marks
//     (category Mn). For Arabic script this strips the harakat and
//     extended tashkil (U+064B–U+0652, U+0670, …); for Latin
//     transliterations it strips macrons and similar diacritics.
//  2. Lowercasing, where the script distinguishes case.
//  3. Removal of punctuation and symbol runes.
//  4. Trimming surrounding whitespace and collapsing internal whitespace
//     runs to single spaces.
//
// Empty input returns the empty string.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	decomposed := norm.NFD.String(text)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// Combining mark: drop.
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// Punctuation breaks words; replace with a space so that
			// "subhanallah,alhamdulillah" still splits into two words.
			b.WriteRune(' ')
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

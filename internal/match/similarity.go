// Package match implements the text-matching primitives of the verification
// engine: normalized edit-distance similarity, repetition counting over a
// transcript, and phonetic identification of a spoken catalog entry.
//
// All inputs are expected to be pre-normalized with
// [github.com/zikrgate/zikrgate/internal/textnorm.Normalize]; the functions
// here do no normalization of their own.
package match

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Similarity returns a normalized edit-distance similarity between a and b
// in [0, 1]:
//
//	1 - levenshtein(a, b) / max(runes(a), runes(b))
//
// Both strings empty yields 1.0; exactly one empty yields 0.0. The
// acceptance thresholds in the dhikr catalog are tuned against exactly this
// normalization, so it must not be replaced with a symmetrized variant.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 && lb == 0 {
		return 1.0
	}
	if la == 0 || lb == 0 {
		return 0.0
	}

	longest := la
	if lb > longest {
		longest = lb
	}

	d := matchr.Levenshtein(a, b)
	return 1.0 - float64(d)/float64(longest)
}

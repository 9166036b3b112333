package match

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/zikrgate/zikrgate/internal/dhikr"
)

const (
	defaultPhoneticThreshold = 0.60
	defaultIdentifyFuzzy     = 0.80
)

// IdentifierOption is a functional option for configuring an [Identifier].
type IdentifierOption func(*Identifier)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched catalog entry to be accepted. Default: 0.60.
func WithPhoneticThreshold(threshold float64) IdentifierOption {
	return func(m *Identifier) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate is found and the identifier falls back to pure string
// similarity. Default: 0.80.
func WithFuzzyThreshold(threshold float64) IdentifierOption {
	return func(m *Identifier) {
		m.fuzzyThreshold = threshold
	}
}

// Identifier maps a spoken utterance to the catalog entry it most
// resembles, using Double Metaphone phonetic candidate filtering followed
// by Jaro-Winkler ranking over the catalog transliterations.
//
// Identification is advisory: it tells the caller which dhikr the user
// appears to be reciting (e.g. to preselect a challenge), and never feeds
// into verification verdicts.
//
// All methods are safe for concurrent use — the Identifier is read-only
// after construction.
type Identifier struct {
	entries           []dhikr.Requirement
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewIdentifier returns an Identifier over the given catalog entries.
func NewIdentifier(entries []dhikr.Requirement, opts ...IdentifierOption) *Identifier {
	m := &Identifier{
		entries:           entries,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultIdentifyFuzzy,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Identify returns the catalog entry whose transliteration best matches
// utterance, with its confidence score. When no entry reaches a threshold,
// ok is false and the zero Requirement is returned.
//
// Phonetic candidates (any Double Metaphone code overlap between utterance
// tokens and transliteration tokens) are preferred; among them the highest
// Jaro-Winkler score wins, provided it reaches the phonetic threshold.
// Without a phonetic candidate, a pure Jaro-Winkler pass with the stricter
// fuzzy threshold decides.
func (m *Identifier) Identify(utterance string) (best dhikr.Requirement, confidence float64, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(utterance))
	if lower == "" || len(m.entries) == 0 {
		return dhikr.Requirement{}, 0, false
	}
	tokens := strings.Fields(lower)
	inputCodes := codesForTokens(tokens)

	var (
		bestScore    float64
		bestPhonetic bool
		found        bool
	)

	for _, entry := range m.entries {
		ref := strings.ToLower(strings.TrimSpace(entry.Transliteration))
		if ref == "" {
			continue
		}
		refTokens := strings.Fields(ref)

		phonetic := codesOverlap(inputCodes, codesForTokens(refTokens))
		score := bestJWScore(tokens, refTokens, lower, ref)

		switch {
		case phonetic && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic, found = entry, score, true, true
			}
		case !phonetic && !bestPhonetic:
			if score >= m.fuzzyThreshold && score > bestScore {
				best, bestScore, found = entry, score, true
			}
		}
	}

	if !found {
		return dhikr.Requirement{}, 0, false
	}
	return best, bestScore, true
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the
// utterance and the reference transliteration using three strategies:
// full strings, space-stripped strings, and best pairwise token score.
// The multi-strategy comparison absorbs the word-boundary instability of
// STT output on transliterated Arabic ("subhan allah" vs "subhanallah").
func bestJWScore(inputTokens, refTokens []string, inputFull, refFull string) float64 {
	score := matchr.JaroWinkler(inputFull, refFull, false)

	if len(inputTokens) > 1 || len(refTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(refTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, rt := range refTokens {
			if s := matchr.JaroWinkler(it, rt, false); s > score {
				score = s
			}
		}
	}

	return score
}

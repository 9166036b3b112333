// Package verify implements the verification engine: it scores one
// transcribed utterance against a dhikr requirement and returns a closed
// [Verdict]. The engine is stateless and side-effect free; recording the
// unlock that a successful verdict earns is the caller's responsibility.
package verify

import (
	"unicode"

	"github.com/zikrgate/zikrgate/internal/dhikr"
	"github.com/zikrgate/zikrgate/internal/match"
	"github.com/zikrgate/zikrgate/internal/textnorm"
)

// DefaultPartialBand is how far below the acceptance threshold a
// single-shot similarity may land and still be reported as a near miss
// (Partial) rather than a Failure. Independent of the repetition counter's
// fuzzy window threshold.
const DefaultPartialBand = 0.2

// Option configures an [Engine].
type Option func(*Engine)

// WithPartialBand overrides the near-miss band width.
// Default: [DefaultPartialBand].
func WithPartialBand(band float64) Option {
	return func(e *Engine) {
		e.partialBand = band
	}
}

// WithCounter supplies a repetition counter, e.g. one with a non-default
// fuzzy window threshold.
func WithCounter(c *match.Counter) Option {
	return func(e *Engine) {
		e.counter = c
	}
}

// Engine scores transcripts against requirements. It holds no per-attempt
// state: Verify may be called repeatedly and concurrently with the same
// inputs without corrupting anything.
type Engine struct {
	counter     *match.Counter
	partialBand float64
}

// New returns an Engine configured with the supplied options.
func New(opts ...Option) *Engine {
	e := &Engine{
		counter:     match.NewCounter(),
		partialBand: DefaultPartialBand,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Verify scores transcript against req and returns the verdict for this
// attempt.
//
// For requirements with more than one repetition, the repetition counter
// runs first: enough detections is a Success, some-but-not-enough is a
// Partial, and zero falls through to single-shot scoring — holistic
// similarity gives non-repetition phrasing a second chance rather than
// failing outright.
//
// Single-shot scoring compares normalized transcript and reference text:
// similarity at or above the acceptance threshold is a Success, within
// the near-miss band below it is Partial{0, 1}, and anything lower is a
// Failure — NoSpeech when the normalized transcript is empty, otherwise
// LowConfidence.
//
// The reference text is chosen per transcript script: transcripts that
// contain Arabic letters compare against the requirement's script text,
// Latin-script transcripts against its transliteration. Constants and
// algorithm are identical either way.
func (e *Engine) Verify(transcript string, req dhikr.Requirement) Verdict {
	normalized := textnorm.Normalize(transcript)
	reference := textnorm.Normalize(e.referenceFor(transcript, req))

	if req.Repetitions > 1 {
		detected := e.counter.Count(normalized, reference)
		switch {
		case detected >= req.Repetitions:
			return Success()
		case detected > 0:
			return Partial(detected, req.Repetitions)
		}
		// Zero detections: fall through to holistic scoring.
	}

	similarity := match.Similarity(normalized, reference)
	switch {
	case similarity >= req.AcceptanceThreshold:
		return Success()
	case similarity >= req.AcceptanceThreshold-e.partialBand:
		return Partial(0, 1)
	case normalized == "":
		return Failure(ReasonNoSpeech)
	default:
		return Failure(ReasonLowConfidence)
	}
}

// referenceFor picks the requirement text in the same script as the
// transcript. An empty transcript defaults to the script text.
func (e *Engine) referenceFor(transcript string, req dhikr.Requirement) string {
	if req.Transliteration == "" || containsArabic(transcript) {
		return req.ScriptText
	}
	if hasLetters(transcript) {
		return req.Transliteration
	}
	return req.ScriptText
}

// containsArabic reports whether s contains at least one Arabic-script rune.
func containsArabic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) {
			return true
		}
	}
	return false
}

// hasLetters reports whether s contains at least one letter rune.
func hasLetters(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

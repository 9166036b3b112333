package match

import "strings"

// DefaultWindowThreshold is the similarity a fuzzy word window must reach
// to count as one occurrence of the phrase. It is deliberately independent
// of the engine's near-miss band; the two constants happen to coincide but
// are tuned separately.
const DefaultWindowThreshold = 0.7

// Counter counts repetitions of a phrase within a transcript.
// The zero value is not usable; construct with [NewCounter].
// Counter is read-only after construction and safe for concurrent use.
type Counter struct {
	windowThreshold float64
}

// CounterOption configures a [Counter].
type CounterOption func(*Counter)

// WithWindowThreshold overrides the fuzzy window similarity threshold.
// Default: [DefaultWindowThreshold].
func WithWindowThreshold(threshold float64) CounterOption {
	return func(c *Counter) {
		c.windowThreshold = threshold
	}
}

// NewCounter returns a Counter configured with the supplied options.
func NewCounter(opts ...CounterOption) *Counter {
	c := &Counter{windowThreshold: DefaultWindowThreshold}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Count reports how many times phrase occurs in transcript. Both arguments
// must already be normalized.
//
// The exact pass scans left to right for literal, non-overlapping
// occurrences. Only when the exact pass finds nothing does Count fall back
// to fuzzy segmentation: every window of len(phrase words) consecutive
// transcript words is scored with [Similarity] against the phrase, and
// windows at or above the window threshold each count as one occurrence.
//
// Fuzzy windows are counted independently, with no overlap suppression.
// For short phrases with shared substrings this can over-count; the
// tuned thresholds assume this counting, so changing it requires
// re-tuning them.
func (c *Counter) Count(transcript, phrase string) int {
	if transcript == "" || phrase == "" {
		return 0
	}

	if n := countExact(transcript, phrase); n > 0 {
		return n
	}
	return c.countFuzzy(transcript, phrase)
}

// countExact counts literal non-overlapping occurrences of phrase,
// advancing the scan position just past each match.
func countExact(transcript, phrase string) int {
	count := 0
	for start := 0; ; {
		i := strings.Index(transcript[start:], phrase)
		if i < 0 {
			return count
		}
		count++
		start += i + len(phrase)
	}
}

// countFuzzy slides a window of k consecutive transcript words (k = number
// of words in phrase) across all valid offsets and counts windows whose
// similarity to the phrase reaches the threshold.
func (c *Counter) countFuzzy(transcript, phrase string) int {
	words := strings.Fields(transcript)
	k := len(strings.Fields(phrase))
	if k == 0 || len(words) < k {
		return 0
	}

	count := 0
	for i := 0; i+k <= len(words); i++ {
		window := strings.Join(words[i:i+k], " ")
		if Similarity(window, phrase) >= c.windowThreshold {
			count++
		}
	}
	return count
}

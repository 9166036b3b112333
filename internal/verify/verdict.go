package verify

import "fmt"

// Outcome discriminates the variants of a [Verdict].
type Outcome string

const (
	// OutcomeSuccess means the recitation was accepted.
	OutcomeSuccess Outcome = "success"

	// OutcomePartial means some but not all of the requirement was met:
	// either too few repetitions were detected, or a single-shot
	// recitation landed in the near-miss band just below the acceptance
	// threshold.
	OutcomePartial Outcome = "partial"

	// OutcomeFailure means the attempt was rejected outright.
	OutcomeFailure Outcome = "failure"
)

// FailureReason explains an [OutcomeFailure] verdict. The taxonomy is
// deliberately small and closed.
type FailureReason string

const (
	// ReasonNoSpeech means the transcript was empty after normalization.
	// Surfaced to the user as a retry prompt, not a fatal error.
	ReasonNoSpeech FailureReason = "no_speech"

	// ReasonLowConfidence means speech was present but similarity fell
	// below the near-miss band. Retryable.
	ReasonLowConfidence FailureReason = "low_confidence"

	// ReasonWrongPhrase is reserved for discriminating "said something
	// unrelated" from low-confidence recitation. The engine does not
	// currently produce it.
	ReasonWrongPhrase FailureReason = "wrong_phrase"
)

// Verdict is the closed outcome of one verification attempt. It is
// produced fresh per attempt and never persisted.
//
// Detected and Required are meaningful only for [OutcomePartial];
// Reason only for [OutcomeFailure].
type Verdict struct {
	Outcome  Outcome
	Detected int
	Required int
	Reason   FailureReason
}

// Success returns the accepted verdict.
func Success() Verdict {
	return Verdict{Outcome: OutcomeSuccess}
}

// Partial returns a verdict reporting detected of required repetitions.
func Partial(detected, required int) Verdict {
	return Verdict{Outcome: OutcomePartial, Detected: detected, Required: required}
}

// Failure returns a rejected verdict with the given reason.
func Failure(reason FailureReason) Verdict {
	return Verdict{Outcome: OutcomeFailure, Reason: reason}
}

// Accepted reports whether the verdict unlocks access.
func (v Verdict) Accepted() bool { return v.Outcome == OutcomeSuccess }

// String renders the verdict for logs.
func (v Verdict) String() string {
	switch v.Outcome {
	case OutcomePartial:
		return fmt.Sprintf("partial (%d/%d)", v.Detected, v.Required)
	case OutcomeFailure:
		return fmt.Sprintf("failure (%s)", v.Reason)
	default:
		return string(v.Outcome)
	}
}

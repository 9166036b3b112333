// Package ledger implements the per-user usage ledger: the persistent
// record of daily usage minutes, unlock counters, emergency bypasses, and
// dhikr debt that together gate access.
//
// The ledger is a pure data state machine. It enforces no policy of its
// own beyond its documented invariants: callers check CanUnlock before
// RecordUnlock, clamp the daily limit into range before construction, and
// serialize access per user (single-writer discipline) — concurrent
// mutation of the same State without external serialization is undefined.
package ledger

import "time"

// Defaults and caps for ledger counters.
const (
	// DefaultDailyLimitMinutes is the default daily usage allowance.
	DefaultDailyLimitMinutes = 60

	// MinDailyLimitMinutes and MaxDailyLimitMinutes bound the
	// configurable daily limit. The ledger does not re-validate the
	// limit on every mutation; the config layer clamps it up front.
	MinDailyLimitMinutes = 30
	MaxDailyLimitMinutes = 120

	// DefaultFreeUnlockLimit is how many verified unlocks a free user
	// gets per day.
	DefaultFreeUnlockLimit = 15

	// MaxEmergencyBypasses is the daily emergency bypass allowance.
	MaxEmergencyBypasses = 3

	// MaxDebt caps accrued dhikr debt at MaxDebt-1, so that the debt
	// multiplier (debt+1) never exceeds MaxDebt.
	MaxDebt = 3
)

// State is the mutable, persisted per-user ledger record.
//
// Invariants: MinutesUsedToday >= 0, UnlocksUsedToday >= 0,
// EmergencyBypassesRemaining in [0, MaxEmergencyBypasses], and
// DhikrDebt in [0, MaxDebt-1].
type State struct {
	// UserID identifies the owner of this record.
	UserID string

	// DailyLimitMinutes is the usage allowance per day, in [30, 120].
	DailyLimitMinutes int

	// MinutesUsedToday is cumulative gated-app usage since the last reset.
	MinutesUsedToday int

	// UnlocksUsedToday counts verified unlocks since the last reset.
	UnlocksUsedToday int

	// FreeUnlockLimit is the daily unlock allowance for non-premium users.
	FreeUnlockLimit int

	// IsPremiumUnlimited removes the unlock-count limit (the minute
	// limit still applies).
	IsPremiumUnlimited bool

	// EmergencyBypassesRemaining counts bypasses left today.
	EmergencyBypassesRemaining int

	// DhikrDebt is the outstanding debt accrued by emergency bypasses.
	// The required recitation's repetitions are multiplied by debt+1,
	// capped at MaxDebt.
	DhikrDebt int

	// LastReset is when the ledger was last reset for a new day.
	LastReset time.Time

	// AppUsage breaks MinutesUsedToday down per gated app, keyed by the
	// externally supplied app identifier.
	AppUsage map[string]int
}

// NewState returns a fresh ledger for userID with full daily allowances.
// dailyLimitMinutes outside [30, 120] is clamped.
func NewState(userID string, dailyLimitMinutes int, now time.Time) State {
	return State{
		UserID:                     userID,
		DailyLimitMinutes:          ClampDailyLimit(dailyLimitMinutes),
		FreeUnlockLimit:            DefaultFreeUnlockLimit,
		EmergencyBypassesRemaining: MaxEmergencyBypasses,
		LastReset:                  now,
		AppUsage:                   make(map[string]int),
	}
}

// ClampDailyLimit clamps minutes into [MinDailyLimitMinutes,
// MaxDailyLimitMinutes]. Zero (unset) clamps to the minimum; callers
// wanting the default should pass DefaultDailyLimitMinutes explicitly.
func ClampDailyLimit(minutes int) int {
	if minutes < MinDailyLimitMinutes {
		return MinDailyLimitMinutes
	}
	if minutes > MaxDailyLimitMinutes {
		return MaxDailyLimitMinutes
	}
	return minutes
}

// CanUnlock reports whether another verified unlock is available: the
// user is under the daily minute limit, and either premium or under the
// free unlock count.
func (s *State) CanUnlock() bool {
	if s.MinutesUsedToday >= s.DailyLimitMinutes {
		return false
	}
	return s.IsPremiumUnlimited || s.UnlocksUsedToday < s.FreeUnlockLimit
}

// RecordUnlock increments the unlock counter. It does not re-check
// CanUnlock; policy enforcement is the caller's responsibility.
func (s *State) RecordUnlock() {
	s.UnlocksUsedToday++
}

// RecordUsageMinutes adds minutes to the daily total and to the per-app
// breakdown. Non-positive minutes are ignored.
func (s *State) RecordUsageMinutes(appID string, minutes int) {
	if minutes <= 0 {
		return
	}
	s.MinutesUsedToday += minutes
	if s.AppUsage == nil {
		s.AppUsage = make(map[string]int)
	}
	s.AppUsage[appID] += minutes
}

// ConsumeEmergencyBypass spends one emergency bypass, accruing one unit
// of dhikr debt (capped at MaxDebt-1). Returns false, leaving the state
// unchanged, when no bypasses remain.
func (s *State) ConsumeEmergencyBypass() bool {
	if s.EmergencyBypassesRemaining <= 0 {
		return false
	}
	s.EmergencyBypassesRemaining--
	if s.DhikrDebt < MaxDebt-1 {
		s.DhikrDebt++
	}
	return true
}

// PayDownDebt retires one unit of dhikr debt. Called after a successful
// verified unlock that used a multiplied requirement. No-op at zero.
func (s *State) PayDownDebt() {
	if s.DhikrDebt > 0 {
		s.DhikrDebt--
	}
}

// SameDayFunc reports whether two instants fall in the same "day" under
// the host's day-boundary definition. The default is the calendar day in
// a fixed location, but the boundary is designed to be supplied
// externally — e.g. computed from the most recent qualifying prayer time.
type SameDayFunc func(a, b time.Time) bool

// CalendarDay returns a SameDayFunc comparing calendar dates in loc.
// A nil loc means time.Local.
func CalendarDay(loc *time.Location) SameDayFunc {
	if loc == nil {
		loc = time.Local
	}
	return func(a, b time.Time) bool {
		ay, am, ad := a.In(loc).Date()
		by, bm, bd := b.In(loc).Date()
		return ay == by && am == bm && ad == bd
	}
}

// ResetForNewDay resets the daily counters when resetInstant falls in a
// different day than LastReset under sameDay. Within the same day it is
// a no-op, so the check is idempotent and safe to run on every session
// activation. A nil sameDay uses the local calendar day.
//
// Reset restores: minutes and unlocks to zero, emergency bypasses to the
// full allowance, debt to zero, and stamps LastReset with resetInstant.
func (s *State) ResetForNewDay(resetInstant time.Time, sameDay SameDayFunc) bool {
	if sameDay == nil {
		sameDay = CalendarDay(nil)
	}
	if sameDay(s.LastReset, resetInstant) {
		return false
	}

	s.MinutesUsedToday = 0
	s.UnlocksUsedToday = 0
	s.EmergencyBypassesRemaining = MaxEmergencyBypasses
	s.DhikrDebt = 0
	s.LastReset = resetInstant
	s.AppUsage = make(map[string]int)
	return true
}

// Clone returns a deep copy of s, including the per-app usage map.
func (s *State) Clone() State {
	out := *s
	out.AppUsage = make(map[string]int, len(s.AppUsage))
	for k, v := range s.AppUsage {
		out.AppUsage[k] = v
	}
	return out
}

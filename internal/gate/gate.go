// Package gate implements the session layer that owns per-user usage
// ledgers and drives the verification flow: it decides which recitation is
// currently required, scores submitted transcripts, and applies the
// resulting ledger mutations.
//
// The gate enforces the single-writer discipline the ledger requires: all
// access to one user's state goes through that user's mutex. The scoring
// engine itself is stateless; only the ledger is shared, and only here.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/zikrgate/zikrgate/internal/dhikr"
	"github.com/zikrgate/zikrgate/internal/ledger"
	"github.com/zikrgate/zikrgate/internal/observe"
	"github.com/zikrgate/zikrgate/internal/tier"
	"github.com/zikrgate/zikrgate/internal/verify"
)

// Config holds all dependencies for a [Gatekeeper].
type Config struct {
	// Policy maps usage to required recitations. Required.
	Policy *tier.Policy

	// Engine scores transcripts. Required.
	Engine *verify.Engine

	// Store persists ledgers. Required.
	Store ledger.Store

	// Metrics receives gate instrumentation. When nil,
	// observe.DefaultMetrics() is used.
	Metrics *observe.Metrics

	// DailyLimitMinutes seeds new ledgers; must already be clamped to
	// [30, 120] by the config layer.
	DailyLimitMinutes int

	// FreeUnlockLimit seeds new ledgers. Zero means the default.
	FreeUnlockLimit int

	// MaxEmergencyBypasses caps the per-day bypass allowance. Zero means
	// the default. Values above ledger.MaxEmergencyBypasses are lowered.
	MaxEmergencyBypasses int

	// SameDay is the day-boundary predicate for ledger resets. Nil means
	// the local calendar day. Deployments keying the reset off prayer
	// times supply their own predicate here.
	SameDay ledger.SameDayFunc

	// Now supplies the current time; nil means time.Now. Injected for
	// tests and for hosts that pin the reset instant externally.
	Now func() time.Time
}

// Status is a snapshot of one user's gate state, including the recitation
// the gate would currently demand (with any debt multiplier applied).
type Status struct {
	UserID                     string
	CanUnlock                  bool
	MinutesUsedToday           int
	DailyLimitMinutes          int
	UnlocksUsedToday           int
	FreeUnlockLimit            int
	IsPremiumUnlimited         bool
	EmergencyBypassesRemaining int
	DhikrDebt                  int
	Required                   dhikr.Requirement
	AppUsage                   map[string]int
}

// VerifyResult reports one verification attempt: the engine's verdict,
// whether an unlock was actually granted, and the post-attempt status.
type VerifyResult struct {
	Verdict verify.Verdict

	// Granted is true when the verdict was a success and the ledger had
	// unlock quota left. A successful recitation against an exhausted
	// ledger earns no unlock.
	Granted bool

	Status Status
}

// Gatekeeper owns the per-user ledgers. All exported methods are safe for
// concurrent use.
type Gatekeeper struct {
	policy  *tier.Policy
	engine  *verify.Engine
	store   ledger.Store
	metrics *observe.Metrics

	dailyLimit  int
	unlockLimit int
	bypassAllow int
	sameDay     ledger.SameDayFunc
	now         func() time.Time

	mu    sync.Mutex
	users map[string]*userEntry
}

// userEntry serializes access to one user's state.
type userEntry struct {
	mu     sync.Mutex
	state  ledger.State
	loaded bool
}

// New creates a Gatekeeper from cfg. Policy, Engine, and Store are
// required.
func New(cfg Config) (*Gatekeeper, error) {
	if cfg.Policy == nil || cfg.Engine == nil || cfg.Store == nil {
		return nil, errors.New("gate: policy, engine, and store are required")
	}

	g := &Gatekeeper{
		policy:      cfg.Policy,
		engine:      cfg.Engine,
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		dailyLimit:  ledger.ClampDailyLimit(cfg.DailyLimitMinutes),
		unlockLimit: cfg.FreeUnlockLimit,
		bypassAllow: cfg.MaxEmergencyBypasses,
		sameDay:     cfg.SameDay,
		now:         cfg.Now,
		users:       make(map[string]*userEntry),
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	if g.unlockLimit <= 0 {
		g.unlockLimit = ledger.DefaultFreeUnlockLimit
	}
	if g.bypassAllow <= 0 || g.bypassAllow > ledger.MaxEmergencyBypasses {
		g.bypassAllow = ledger.MaxEmergencyBypasses
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g, nil
}

// Status returns the user's current gate status, performing the
// day-boundary reset check first.
func (g *Gatekeeper) Status(ctx context.Context, userID string) (Status, error) {
	var out Status
	err := g.withUser(ctx, userID, func(st *ledger.State) error {
		out = g.snapshot(st)
		return nil
	})
	return out, err
}

// Verify scores transcript against the user's currently required
// recitation. On success with available quota it records the unlock and,
// when a debt multiplier was in effect, pays down one unit of debt.
func (g *Gatekeeper) Verify(ctx context.Context, userID, transcript string) (VerifyResult, error) {
	var res VerifyResult
	err := g.withUser(ctx, userID, func(st *ledger.State) error {
		required := g.required(st)

		start := time.Now()
		verdict := g.engine.Verify(transcript, required)
		g.metrics.VerifyDuration.Record(ctx, time.Since(start).Seconds())
		g.metrics.RecordVerdict(ctx, string(verdict.Outcome), string(verdict.Reason), required.ID)

		res.Verdict = verdict
		if verdict.Accepted() && st.CanUnlock() {
			st.RecordUnlock()
			if st.DhikrDebt > 0 {
				// The requirement was multiplied; the extra recitation
				// retires one unit of debt.
				st.PayDownDebt()
				g.metrics.OutstandingDebt.Add(ctx, -1)
			}
			res.Granted = true
			g.metrics.Unlocks.Add(ctx, 1, metric.WithAttributes(observe.Attr("requirement", required.ID)))
		}

		observe.Logger(ctx).Info("verification attempt",
			"user_id", userID,
			"requirement", required.ID,
			"repetitions", required.Repetitions,
			"verdict", verdict.String(),
			"granted", res.Granted,
		)

		res.Status = g.snapshot(st)
		return nil
	})
	return res, err
}

// Progress is a non-mutating preview of a repetition requirement: how many
// repetitions the transcript-so-far contains. Used by the live
// verification stream; it never touches unlock or debt state.
func (g *Gatekeeper) Progress(ctx context.Context, userID, transcript string) (detected, required int, err error) {
	err = g.withUser(ctx, userID, func(st *ledger.State) error {
		req := g.required(st)
		verdict := g.engine.Verify(transcript, req)
		required = req.Repetitions
		switch verdict.Outcome {
		case verify.OutcomeSuccess:
			detected = req.Repetitions
		case verify.OutcomePartial:
			detected = verdict.Detected
		default:
			detected = 0
		}
		return nil
	})
	return detected, required, err
}

// Bypass consumes one emergency bypass for the user. granted is false when
// the daily bypass allowance is exhausted.
func (g *Gatekeeper) Bypass(ctx context.Context, userID string) (granted bool, status Status, err error) {
	err = g.withUser(ctx, userID, func(st *ledger.State) error {
		before := st.DhikrDebt
		granted = st.ConsumeEmergencyBypass()
		g.metrics.RecordBypass(ctx, granted)
		if granted {
			if st.DhikrDebt > before {
				g.metrics.OutstandingDebt.Add(ctx, 1)
			}
			observe.Logger(ctx).Info("emergency bypass granted",
				"user_id", userID,
				"remaining", st.EmergencyBypassesRemaining,
				"debt", st.DhikrDebt,
			)
		} else {
			observe.Logger(ctx).Warn("emergency bypass denied", "user_id", userID)
		}
		status = g.snapshot(st)
		return nil
	})
	return granted, status, err
}

// RecordUsage adds minutes of gated-app usage for the user.
func (g *Gatekeeper) RecordUsage(ctx context.Context, userID, appID string, minutes int) (Status, error) {
	if minutes < 0 {
		return Status{}, fmt.Errorf("gate: negative usage minutes %d for app %q", minutes, appID)
	}
	var out Status
	err := g.withUser(ctx, userID, func(st *ledger.State) error {
		st.RecordUsageMinutes(appID, minutes)
		g.metrics.UsageMinutes.Add(ctx, int64(minutes), metric.WithAttributes(observe.Attr("app_id", appID)))
		out = g.snapshot(st)
		return nil
	})
	return out, err
}

// required computes the recitation currently demanded of st, debt
// multiplier included.
func (g *Gatekeeper) required(st *ledger.State) dhikr.Requirement {
	base := g.policy.Required(st.MinutesUsedToday)
	return g.policy.ApplyDebt(base, st.DhikrDebt)
}

// snapshot builds a Status from st. The app usage map is copied so the
// caller cannot alias ledger state.
func (g *Gatekeeper) snapshot(st *ledger.State) Status {
	clone := st.Clone()
	return Status{
		UserID:                     clone.UserID,
		CanUnlock:                  st.CanUnlock(),
		MinutesUsedToday:           clone.MinutesUsedToday,
		DailyLimitMinutes:          clone.DailyLimitMinutes,
		UnlocksUsedToday:           clone.UnlocksUsedToday,
		FreeUnlockLimit:            clone.FreeUnlockLimit,
		IsPremiumUnlimited:         clone.IsPremiumUnlimited,
		EmergencyBypassesRemaining: clone.EmergencyBypassesRemaining,
		DhikrDebt:                  clone.DhikrDebt,
		Required:                   g.required(st),
		AppUsage:                   clone.AppUsage,
	}
}

// withUser runs fn with exclusive access to userID's state: load (or
// create) the ledger, run the day-boundary reset check, apply fn, persist.
func (g *Gatekeeper) withUser(ctx context.Context, userID string, fn func(*ledger.State) error) error {
	if userID == "" {
		return errors.New("gate: empty user ID")
	}

	g.mu.Lock()
	entry, ok := g.users[userID]
	if !ok {
		entry = &userEntry{}
		g.users[userID] = entry
	}
	g.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.loaded {
		start := time.Now()
		st, err := g.store.Load(ctx, userID)
		g.metrics.LedgerOpDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("op", "load")))
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			st = ledger.NewState(userID, g.dailyLimit, g.now())
			st.FreeUnlockLimit = g.unlockLimit
			st.EmergencyBypassesRemaining = g.bypassAllow
			slog.Info("created ledger", "user_id", userID, "daily_limit", st.DailyLimitMinutes)
		case err != nil:
			return fmt.Errorf("gate: load ledger for %q: %w", userID, err)
		default:
			g.metrics.OutstandingDebt.Add(ctx, int64(st.DhikrDebt))
		}
		entry.state = st
		entry.loaded = true
	}

	if debtBefore := entry.state.DhikrDebt; entry.state.ResetForNewDay(g.now(), g.sameDay) {
		g.metrics.DayResets.Add(ctx, 1)
		if debtBefore > 0 {
			g.metrics.OutstandingDebt.Add(ctx, -int64(debtBefore))
		}
		if g.bypassAllow < entry.state.EmergencyBypassesRemaining {
			entry.state.EmergencyBypassesRemaining = g.bypassAllow
		}
		slog.Info("ledger reset for new day", "user_id", userID)
	}

	if err := fn(&entry.state); err != nil {
		return err
	}

	start := time.Now()
	err := g.store.Save(ctx, entry.state)
	g.metrics.LedgerOpDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("op", "save")))
	if err != nil {
		return fmt.Errorf("gate: save ledger for %q: %w", userID, err)
	}
	return nil
}

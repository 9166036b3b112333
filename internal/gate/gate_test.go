package gate_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/zikrgate/zikrgate/internal/dhikr"
	"github.com/zikrgate/zikrgate/internal/gate"
	"github.com/zikrgate/zikrgate/internal/ledger"
	"github.com/zikrgate/zikrgate/internal/observe"
	"github.com/zikrgate/zikrgate/internal/tier"
	"github.com/zikrgate/zikrgate/internal/verify"
)

// clock is a settable time source for driving day-boundary behavior.
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestGate(t *testing.T, store ledger.Store, clk *clock, mutate func(*gate.Config)) *gate.Gatekeeper {
	t.Helper()

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}

	cfg := gate.Config{
		Policy:            tier.Default(),
		Engine:            verify.New(),
		Store:             store,
		Metrics:           metrics,
		DailyLimitMinutes: 60,
		SameDay:           ledger.CalendarDay(time.UTC),
		Now:               clk.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := gate.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// recite builds a transcript repeating the tier-0 phrase n times.
func recite(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "subhanallah"
	}
	return strings.Join(parts, " ")
}

func TestGatekeeper_StatusFreshUser(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	g := newTestGate(t, ledger.NewMemStore(), clk, nil)

	st, err := g.Status(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !st.CanUnlock {
		t.Error("fresh user cannot unlock")
	}
	if st.Required.ID != dhikr.IDSubhanAllah {
		t.Errorf("Required = %q, want %q", st.Required.ID, dhikr.IDSubhanAllah)
	}
	if st.Required.Repetitions != 3 {
		t.Errorf("Repetitions = %d, want 3 (no debt multiplier)", st.Required.Repetitions)
	}
	if st.DailyLimitMinutes != 60 || st.EmergencyBypassesRemaining != ledger.MaxEmergencyBypasses {
		t.Errorf("unexpected fresh status: %+v", st)
	}
}

func TestGatekeeper_VerifyGrantsUnlock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &clock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	g := newTestGate(t, ledger.NewMemStore(), clk, nil)

	res, err := g.Verify(ctx, "alice", recite(3))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Verdict.Accepted() {
		t.Fatalf("verdict = %s, want success", res.Verdict)
	}
	if !res.Granted {
		t.Error("successful recitation did not grant an unlock")
	}
	if res.Status.UnlocksUsedToday != 1 {
		t.Errorf("UnlocksUsedToday = %d, want 1", res.Status.UnlocksUsedToday)
	}
}

func TestGatekeeper_VerifyPartial(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &clock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	g := newTestGate(t, ledger.NewMemStore(), clk, nil)

	res, err := g.Verify(ctx, "alice", recite(2))
	if err != nil {
		t.Fatal(err)
	}
	if res.Verdict.Outcome != verify.OutcomePartial {
		t.Fatalf("verdict = %s, want partial", res.Verdict)
	}
	if res.Granted {
		t.Error("partial verdict granted an unlock")
	}
	if res.Status.UnlocksUsedToday != 0 {
		t.Errorf("UnlocksUsedToday = %d, want 0", res.Status.UnlocksUsedToday)
	}
}

func TestGatekeeper_SuccessWithoutQuotaEarnsNoUnlock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &clock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	g := newTestGate(t, ledger.NewMemStore(), clk, func(cfg *gate.Config) {
		cfg.FreeUnlockLimit = 1
	})

	first, err := g.Verify(ctx, "alice", recite(3))
	if err != nil {
		t.Fatal(err)
	}
	if !first.Granted {
		t.Fatal("first unlock not granted")
	}

	second, err := g.Verify(ctx, "alice", recite(3))
	if err != nil {
		t.Fatal(err)
	}
	if !second.Verdict.Accepted() {
		t.Fatalf("verdict = %s, want success", second.Verdict)
	}
	if second.Granted {
		t.Error("unlock granted past the free unlock limit")
	}
	if second.Status.UnlocksUsedToday != 1 {
		t.Errorf("UnlocksUsedToday = %d, want 1", second.Status.UnlocksUsedToday)
	}
}

func TestGatekeeper_UsageEscalatesTier(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &clock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	g := newTestGate(t, ledger.NewMemStore(), clk, nil)

	// Cumulative usage after each step: 10, 25, 45, 58.
	tests := []struct {
		appID   string
		minutes int
		wantID  string
	}{
		{"instagram", 10, dhikr.IDSubhanAllah},
		{"instagram", 15, dhikr.IDAyatAlKursi},
		{"tiktok", 20, dhikr.IDSurahAlMulk},
		{"tiktok", 13, dhikr.IDTasbihSet},
	}

	for _, tt := range tests {
		st, err := g.RecordUsage(ctx, "alice", tt.appID, tt.minutes)
		if err != nil {
			t.Fatal(err)
		}
		if st.Required.ID != tt.wantID {
			t.Errorf("at %d minutes: Required = %q, want %q", st.MinutesUsedToday, st.Required.ID, tt.wantID)
		}
	}
}

func TestGatekeeper_BypassAccruesDebtAndMultipliesRequirement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &clock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	g := newTestGate(t, ledger.NewMemStore(), clk, nil)

	granted, st, err := g.Bypass(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !granted {
		t.Fatal("first bypass denied")
	}
	if st.DhikrDebt != 1 {
		t.Fatalf("DhikrDebt = %d, want 1", st.DhikrDebt)
	}
	if st.Required.Repetitions != 6 {
		t.Errorf("Required.Repetitions = %d, want 6 (doubled by debt)", st.Required.Repetitions)
	}

	// Three repetitions no longer clear the doubled requirement.
	res, err := g.Verify(ctx, "alice", recite(3))
	if err != nil {
		t.Fatal(err)
	}
	if res.Verdict.Outcome != verify.OutcomePartial || res.Verdict.Required != 6 {
		t.Fatalf("verdict = %s, want partial (3/6)", res.Verdict)
	}

	// Six clear it, grant the unlock, and retire one unit of debt.
	res, err = g.Verify(ctx, "alice", recite(6))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Granted {
		t.Fatalf("verdict = %s, granted = %v, want granted success", res.Verdict, res.Granted)
	}
	if res.Status.DhikrDebt != 0 {
		t.Errorf("DhikrDebt = %d, want 0 after paydown", res.Status.DhikrDebt)
	}
	if res.Status.Required.Repetitions != 3 {
		t.Errorf("Required.Repetitions = %d, want 3 after paydown", res.Status.Required.Repetitions)
	}
}

func TestGatekeeper_BypassExhaustion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &clock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	g := newTestGate(t, ledger.NewMemStore(), clk, nil)

	for i := 1; i <= 3; i++ {
		granted, _, err := g.Bypass(ctx, "alice")
		if err != nil {
			t.Fatal(err)
		}
		if !granted {
			t.Fatalf("bypass %d denied", i)
		}
	}

	granted, st, err := g.Bypass(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if granted {
		t.Error("fourth bypass granted")
	}
	if st.EmergencyBypassesRemaining != 0 || st.DhikrDebt != 2 {
		t.Errorf("status = %+v, want 0 bypasses and debt 2", st)
	}

	// Debt multiplier caps at 3x even though two units are outstanding.
	if st.Required.Repetitions != 9 {
		t.Errorf("Required.Repetitions = %d, want 9", st.Required.Repetitions)
	}
}

func TestGatekeeper_DayBoundaryReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &clock{now: time.Date(2025, time.March, 10, 22, 0, 0, 0, time.UTC)}
	g := newTestGate(t, ledger.NewMemStore(), clk, nil)

	if _, err := g.RecordUsage(ctx, "alice", "instagram", 50); err != nil {
		t.Fatal(err)
	}
	if _, _, err := g.Bypass(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	// Cross midnight: the next touch resets all daily counters.
	clk.now = clk.now.Add(3 * time.Hour)

	st, err := g.Status(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if st.MinutesUsedToday != 0 || st.DhikrDebt != 0 {
		t.Errorf("status after reset = %+v", st)
	}
	if st.EmergencyBypassesRemaining != ledger.MaxEmergencyBypasses {
		t.Errorf("EmergencyBypassesRemaining = %d, want %d", st.EmergencyBypassesRemaining, ledger.MaxEmergencyBypasses)
	}
	if st.Required.ID != dhikr.IDSubhanAllah {
		t.Errorf("Required = %q, want tier 0 after reset", st.Required.ID)
	}
}

func TestGatekeeper_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ledger.NewMemStore()
	clk := &clock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}

	g1 := newTestGate(t, store, clk, nil)
	if _, err := g1.RecordUsage(ctx, "alice", "instagram", 30); err != nil {
		t.Fatal(err)
	}

	g2 := newTestGate(t, store, clk, nil)
	st, err := g2.Status(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if st.MinutesUsedToday != 30 {
		t.Errorf("MinutesUsedToday = %d, want 30 from persisted ledger", st.MinutesUsedToday)
	}
}

func TestGatekeeper_Progress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &clock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	g := newTestGate(t, ledger.NewMemStore(), clk, nil)

	detected, required, err := g.Progress(ctx, "alice", recite(2))
	if err != nil {
		t.Fatal(err)
	}
	if detected != 2 || required != 3 {
		t.Errorf("Progress = %d/%d, want 2/3", detected, required)
	}

	// Progress never mutates unlock state, even on a complete recitation.
	detected, required, err = g.Progress(ctx, "alice", recite(3))
	if err != nil {
		t.Fatal(err)
	}
	if detected != 3 || required != 3 {
		t.Errorf("Progress = %d/%d, want 3/3", detected, required)
	}
	st, err := g.Status(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if st.UnlocksUsedToday != 0 {
		t.Errorf("UnlocksUsedToday = %d, want 0 after Progress", st.UnlocksUsedToday)
	}
}

func TestGatekeeper_InputValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &clock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	g := newTestGate(t, ledger.NewMemStore(), clk, nil)

	if _, err := g.Status(ctx, ""); err == nil {
		t.Error("Status with empty user ID returned nil error")
	}
	if _, err := g.RecordUsage(ctx, "alice", "instagram", -1); err == nil {
		t.Error("RecordUsage with negative minutes returned nil error")
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := gate.New(gate.Config{})
	if err == nil {
		t.Error("New with empty config returned nil error")
	}
}

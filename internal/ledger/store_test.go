package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zikrgate/zikrgate/internal/ledger"
)

func TestMemStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ledger.NewMemStore()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}

	s := ledger.NewState("alice", 60, time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC))
	s.RecordUsageMinutes("instagram", 12)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.MinutesUsedToday != 12 || got.AppUsage["instagram"] != 12 {
		t.Errorf("loaded state = %+v", got)
	}

	// The store hands back copies: mutating a loaded state must not leak
	// into a subsequent load.
	got.RecordUsageMinutes("instagram", 100)
	again, err := store.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if again.MinutesUsedToday != 12 {
		t.Errorf("MinutesUsedToday = %d, want 12", again.MinutesUsedToday)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/zikrgate/zikrgate/internal/app"
	"github.com/zikrgate/zikrgate/internal/config"
	"github.com/zikrgate/zikrgate/internal/dhikr"
)

// testConfig returns a minimal memory-backed config.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Storage: config.StorageConfig{
			Driver: config.StorageMemory,
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestNew_WiresGatekeeper(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	st, err := a.Gatekeeper().Status(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Required.ID != dhikr.IDSubhanAllah {
		t.Errorf("Required = %q, want tier 0", st.Required.ID)
	}
	if st.DailyLimitMinutes != 60 {
		t.Errorf("DailyLimitMinutes = %d, want 60", st.DailyLimitMinutes)
	}
}

func TestNew_SQLiteDriver(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Storage.Driver = config.StorageSQLite
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "ledger.db")

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Gatekeeper().Status(context.Background(), "alice"); err != nil {
		t.Errorf("Status over sqlite: %v", err)
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Storage.Driver = "etcd"

	if _, err := app.New(context.Background(), cfg); err == nil {
		t.Error("New with unknown storage driver returned nil error")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Give the listener a moment to come up, then trigger shutdown.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

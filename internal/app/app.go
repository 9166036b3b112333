// Package app wires all ZikrGate subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems from the loaded config, Run serves until the context is
// cancelled, and teardown happens in reverse construction order.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zikrgate/zikrgate/internal/api"
	"github.com/zikrgate/zikrgate/internal/config"
	"github.com/zikrgate/zikrgate/internal/dhikr"
	"github.com/zikrgate/zikrgate/internal/gate"
	"github.com/zikrgate/zikrgate/internal/health"
	"github.com/zikrgate/zikrgate/internal/ledger"
	ledgerpg "github.com/zikrgate/zikrgate/internal/ledger/postgres"
	"github.com/zikrgate/zikrgate/internal/ledger/resilient"
	ledgersqlite "github.com/zikrgate/zikrgate/internal/ledger/sqlite"
	"github.com/zikrgate/zikrgate/internal/match"
	"github.com/zikrgate/zikrgate/internal/observe"
	"github.com/zikrgate/zikrgate/internal/tier"
	"github.com/zikrgate/zikrgate/internal/verify"
)

// shutdownGrace bounds how long Run waits for in-flight requests on exit.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	store      ledger.Store
	gatekeeper *gate.Gatekeeper
	server     *http.Server
}

// New builds the daemon from cfg: the ledger store selected by the
// storage driver, the tier policy and verification engine from the gate
// constants, the gatekeeper over them, and the HTTP server.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	policy, err := tier.New(cfg.Gate.Boundaries(), cfg.Gate.MaxDebtMultiplier)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("app: build tier policy: %w", err)
	}

	engine := verify.New(
		verify.WithPartialBand(cfg.Gate.PartialBand),
		verify.WithCounter(match.NewCounter(
			match.WithWindowThreshold(cfg.Gate.FuzzyWindowThreshold),
		)),
	)

	metrics := observe.DefaultMetrics()

	gk, err := gate.New(gate.Config{
		Policy:               policy,
		Engine:               engine,
		Store:                store,
		Metrics:              metrics,
		DailyLimitMinutes:    cfg.Gate.DailyLimitMinutes,
		FreeUnlockLimit:      cfg.Gate.FreeUnlockLimit,
		MaxEmergencyBypasses: cfg.Gate.MaxEmergencyBypasses,
		SameDay:              ledger.CalendarDay(cfg.Location()),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("app: build gatekeeper: %w", err)
	}

	identifier := match.NewIdentifier(dhikr.All())
	server := api.NewServer(gk, identifier, metrics, health.Checker{
		Name:  "storage",
		Check: storeCheck(store),
	})

	return &App{
		cfg:        cfg,
		store:      store,
		gatekeeper: gk,
		server: &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Gatekeeper exposes the gate layer, mainly for tests.
func (a *App) Gatekeeper() *gate.Gatekeeper { return a.gatekeeper }

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// closes the ledger store.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown", "err", err)
		}
		return ctx.Err()
	})

	err := g.Wait()

	if cerr := a.store.Close(); cerr != nil {
		slog.Warn("close ledger store", "err", cerr)
	}
	return err
}

// buildStore constructs the ledger store selected by the storage config.
// Database-backed stores are wrapped in a circuit breaker so a failing
// database degrades into fast errors on the unlock path.
func buildStore(ctx context.Context, cfg *config.Config) (ledger.Store, error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		store, err := ledgerpg.NewStore(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app: postgres store: %w", err)
		}
		return resilient.Wrap(store, string(cfg.Storage.Driver)), nil
	case config.StorageSQLite:
		store, err := ledgersqlite.NewStore(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("app: sqlite store: %w", err)
		}
		return resilient.Wrap(store, string(cfg.Storage.Driver)), nil
	case config.StorageMemory:
		return ledger.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("app: unknown storage driver %q", cfg.Storage.Driver)
	}
}

// storeCheck probes the ledger store for the readiness endpoint. A probe
// for a user that does not exist returning ErrNotFound proves the store
// answers queries.
func storeCheck(store ledger.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := store.Load(ctx, "readyz-probe")
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		return err
	}
}

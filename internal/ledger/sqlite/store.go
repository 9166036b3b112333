// Package sqlite provides an embedded SQLite implementation of
// [ledger.Store], suitable for single-host deployments and on-device use.
// It uses the pure-Go modernc.org/sqlite driver via database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zikrgate/zikrgate/internal/ledger"
)

// Compile-time interface check.
var _ ledger.Store = (*Store)(nil)

// migrations holds the schema statements. SQLite executes one at a time.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS usage_ledgers (
		user_id             TEXT PRIMARY KEY,
		daily_limit_minutes INTEGER NOT NULL,
		minutes_used_today  INTEGER NOT NULL DEFAULT 0,
		unlocks_used_today  INTEGER NOT NULL DEFAULT 0,
		free_unlock_limit   INTEGER NOT NULL,
		premium_unlimited   INTEGER NOT NULL DEFAULT 0,
		bypasses_remaining  INTEGER NOT NULL,
		dhikr_debt          INTEGER NOT NULL DEFAULT 0,
		last_reset          TEXT NOT NULL,
		app_usage           TEXT NOT NULL DEFAULT '{}',
		updated_at          TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_ledgers_last_reset
		ON usage_ledgers(last_reset)`,
}

// Store is a SQLite-backed ledger store.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at path and ensures
// the schema exists.
func NewStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger sqlite: open %q: %w", path, err)
	}

	// modernc.org/sqlite serializes writes itself, but a single
	// connection avoids SQLITE_BUSY on concurrent readers+writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger sqlite: ping: %w", err)
	}

	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger sqlite: migrate: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Load implements [ledger.Store].
func (s *Store) Load(ctx context.Context, userID string) (ledger.State, error) {
	const q = `
		SELECT user_id, daily_limit_minutes, minutes_used_today,
		       unlocks_used_today, free_unlock_limit, premium_unlimited,
		       bypasses_remaining, dhikr_debt, last_reset, app_usage
		FROM   usage_ledgers
		WHERE  user_id = ?`

	var (
		st        ledger.State
		lastReset string
		appUsage  string
	)
	err := s.db.QueryRowContext(ctx, q, userID).Scan(
		&st.UserID,
		&st.DailyLimitMinutes,
		&st.MinutesUsedToday,
		&st.UnlocksUsedToday,
		&st.FreeUnlockLimit,
		&st.IsPremiumUnlimited,
		&st.EmergencyBypassesRemaining,
		&st.DhikrDebt,
		&lastReset,
		&appUsage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.State{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.State{}, fmt.Errorf("ledger sqlite: load %q: %w", userID, err)
	}

	st.LastReset, err = time.Parse(time.RFC3339Nano, lastReset)
	if err != nil {
		return ledger.State{}, fmt.Errorf("ledger sqlite: load %q: parse last_reset: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(appUsage), &st.AppUsage); err != nil {
		return ledger.State{}, fmt.Errorf("ledger sqlite: load %q: decode app_usage: %w", userID, err)
	}
	if st.AppUsage == nil {
		st.AppUsage = make(map[string]int)
	}
	return st, nil
}

// Save implements [ledger.Store] as an upsert keyed by user_id.
func (s *Store) Save(ctx context.Context, state ledger.State) error {
	appUsage, err := json.Marshal(state.AppUsage)
	if err != nil {
		return fmt.Errorf("ledger sqlite: save %q: encode app_usage: %w", state.UserID, err)
	}

	const q = `
		INSERT INTO usage_ledgers
		    (user_id, daily_limit_minutes, minutes_used_today,
		     unlocks_used_today, free_unlock_limit, premium_unlimited,
		     bypasses_remaining, dhikr_debt, last_reset, app_usage, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (user_id) DO UPDATE SET
		    daily_limit_minutes = excluded.daily_limit_minutes,
		    minutes_used_today  = excluded.minutes_used_today,
		    unlocks_used_today  = excluded.unlocks_used_today,
		    free_unlock_limit   = excluded.free_unlock_limit,
		    premium_unlimited   = excluded.premium_unlimited,
		    bypasses_remaining  = excluded.bypasses_remaining,
		    dhikr_debt          = excluded.dhikr_debt,
		    last_reset          = excluded.last_reset,
		    app_usage           = excluded.app_usage,
		    updated_at          = datetime('now')`

	_, err = s.db.ExecContext(ctx, q,
		state.UserID,
		state.DailyLimitMinutes,
		state.MinutesUsedToday,
		state.UnlocksUsedToday,
		state.FreeUnlockLimit,
		state.IsPremiumUnlimited,
		state.EmergencyBypassesRemaining,
		state.DhikrDebt,
		state.LastReset.UTC().Format(time.RFC3339Nano),
		string(appUsage),
	)
	if err != nil {
		return fmt.Errorf("ledger sqlite: save %q: %w", state.UserID, err)
	}
	return nil
}

// Close implements [ledger.Store].
func (s *Store) Close() error {
	return s.db.Close()
}

// Package postgres provides a PostgreSQL-backed implementation of
// [ledger.Store] using a pgx connection pool.
//
// The schema is created on construction via CREATE TABLE IF NOT EXISTS;
// the per-app usage breakdown is stored as a JSONB column alongside the
// flat counters.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zikrgate/zikrgate/internal/ledger"
)

// Compile-time interface check.
var _ ledger.Store = (*Store)(nil)

const ddlLedgers = `
CREATE TABLE IF NOT EXISTS usage_ledgers (
    user_id             TEXT         PRIMARY KEY,
    daily_limit_minutes INTEGER      NOT NULL,
    minutes_used_today  INTEGER      NOT NULL DEFAULT 0,
    unlocks_used_today  INTEGER      NOT NULL DEFAULT 0,
    free_unlock_limit   INTEGER      NOT NULL,
    premium_unlimited   BOOLEAN      NOT NULL DEFAULT FALSE,
    bypasses_remaining  INTEGER      NOT NULL,
    dhikr_debt          INTEGER      NOT NULL DEFAULT 0,
    last_reset          TIMESTAMPTZ  NOT NULL,
    app_usage           JSONB        NOT NULL DEFAULT '{}',
    updated_at          TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_usage_ledgers_last_reset
    ON usage_ledgers (last_reset);
`

// Store is a PostgreSQL-backed ledger store. All methods are safe for
// concurrent use; per-user write serialization remains the gate layer's
// responsibility.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection, and
// ensures the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddlLedgers); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger postgres: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Load implements [ledger.Store].
func (s *Store) Load(ctx context.Context, userID string) (ledger.State, error) {
	const q = `
		SELECT user_id, daily_limit_minutes, minutes_used_today,
		       unlocks_used_today, free_unlock_limit, premium_unlimited,
		       bypasses_remaining, dhikr_debt, last_reset, app_usage
		FROM   usage_ledgers
		WHERE  user_id = $1`

	var st ledger.State
	err := s.pool.QueryRow(ctx, q, userID).Scan(
		&st.UserID,
		&st.DailyLimitMinutes,
		&st.MinutesUsedToday,
		&st.UnlocksUsedToday,
		&st.FreeUnlockLimit,
		&st.IsPremiumUnlimited,
		&st.EmergencyBypassesRemaining,
		&st.DhikrDebt,
		&st.LastReset,
		&st.AppUsage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.State{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.State{}, fmt.Errorf("ledger postgres: load %q: %w", userID, err)
	}
	if st.AppUsage == nil {
		st.AppUsage = make(map[string]int)
	}
	return st, nil
}

// Save implements [ledger.Store] as an upsert keyed by user_id.
func (s *Store) Save(ctx context.Context, state ledger.State) error {
	const q = `
		INSERT INTO usage_ledgers
		    (user_id, daily_limit_minutes, minutes_used_today,
		     unlocks_used_today, free_unlock_limit, premium_unlimited,
		     bypasses_remaining, dhikr_debt, last_reset, app_usage, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (user_id) DO UPDATE SET
		    daily_limit_minutes = EXCLUDED.daily_limit_minutes,
		    minutes_used_today  = EXCLUDED.minutes_used_today,
		    unlocks_used_today  = EXCLUDED.unlocks_used_today,
		    free_unlock_limit   = EXCLUDED.free_unlock_limit,
		    premium_unlimited   = EXCLUDED.premium_unlimited,
		    bypasses_remaining  = EXCLUDED.bypasses_remaining,
		    dhikr_debt          = EXCLUDED.dhikr_debt,
		    last_reset          = EXCLUDED.last_reset,
		    app_usage           = EXCLUDED.app_usage,
		    updated_at          = now()`

	_, err := s.pool.Exec(ctx, q,
		state.UserID,
		state.DailyLimitMinutes,
		state.MinutesUsedToday,
		state.UnlocksUsedToday,
		state.FreeUnlockLimit,
		state.IsPremiumUnlimited,
		state.EmergencyBypassesRemaining,
		state.DhikrDebt,
		state.LastReset,
		state.AppUsage,
	)
	if err != nil {
		return fmt.Errorf("ledger postgres: save %q: %w", state.UserID, err)
	}
	return nil
}

// Close implements [ledger.Store].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

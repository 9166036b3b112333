// Package resilient wraps a [ledger.Store] with a circuit breaker so that a
// failing database degrades into fast errors instead of queued timeouts on
// the unlock path.
package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/zikrgate/zikrgate/internal/ledger"
	"github.com/zikrgate/zikrgate/internal/resilience"
)

// Store decorates an inner [ledger.Store] with a shared circuit breaker
// across Load and Save. ErrNotFound is a valid answer, not a failure, and
// never trips the breaker.
type Store struct {
	inner   ledger.Store
	breaker *resilience.CircuitBreaker
}

var _ ledger.Store = (*Store)(nil)

// Wrap returns inner guarded by a breaker named after the storage driver.
func Wrap(inner ledger.Store, driver string) *Store {
	return &Store{
		inner: inner,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "ledger-store-" + driver,
			MaxFailures:  5,
			ResetTimeout: 15 * time.Second,
			HalfOpenMax:  2,
		}),
	}
}

// Load implements [ledger.Store].
func (s *Store) Load(ctx context.Context, userID string) (ledger.State, error) {
	var (
		st       ledger.State
		notFound bool
	)
	err := s.breaker.Execute(func() error {
		loaded, err := s.inner.Load(ctx, userID)
		if errors.Is(err, ledger.ErrNotFound) {
			notFound = true
			return nil
		}
		st = loaded
		return err
	})
	if err != nil {
		return ledger.State{}, err
	}
	if notFound {
		return ledger.State{}, ledger.ErrNotFound
	}
	return st, nil
}

// Save implements [ledger.Store].
func (s *Store) Save(ctx context.Context, state ledger.State) error {
	return s.breaker.Execute(func() error {
		return s.inner.Save(ctx, state)
	})
}

// Close implements [ledger.Store]. Close bypasses the breaker.
func (s *Store) Close() error {
	return s.inner.Close()
}

// State exposes the breaker state, for readiness checks.
func (s *Store) State() resilience.State {
	return s.breaker.State()
}

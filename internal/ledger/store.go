package ledger

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by [Store.Load] when no ledger exists for the
// requested user.
var ErrNotFound = errors.New("ledger: not found")

// Store persists ledger state. The ledger core defines the record shape;
// the storage mechanism (Postgres, SQLite, memory) is an implementation
// concern behind this interface.
type Store interface {
	// Load returns the persisted state for userID, or ErrNotFound.
	Load(ctx context.Context, userID string) (State, error)

	// Save upserts the state keyed by State.UserID.
	Save(ctx context.Context, state State) error

	// Close releases any resources held by the store.
	Close() error
}

// MemStore is an in-memory [Store] for tests and the "memory" storage
// driver. Safe for concurrent use.
type MemStore struct {
	mu     sync.RWMutex
	states map[string]State
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{states: make(map[string]State)}
}

// Load implements [Store].
func (m *MemStore) Load(_ context.Context, userID string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[userID]
	if !ok {
		return State{}, ErrNotFound
	}
	return s.Clone(), nil
}

// Save implements [Store].
func (m *MemStore) Save(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.UserID] = state.Clone()
	return nil
}

// Close implements [Store]. It is a no-op.
func (m *MemStore) Close() error { return nil }

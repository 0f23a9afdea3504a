// Package store provides in-process ledger.Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/green/recycling-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps the last saved state as a deep copy, so later mutations of the
// engine state never leak into what was persisted.
type Memory struct {
	mu    sync.RWMutex
	state *ledger.State
	saves int
}

func NewMemory() *Memory {
	return &Memory{state: ledger.NewState()}
}

// NewMemoryFrom returns a store pre-loaded with a copy of s.
func NewMemoryFrom(s *ledger.State) *Memory {
	return &Memory{state: s.Clone()}
}

func (m *Memory) Load(_ context.Context) (*ledger.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, s *ledger.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = s.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

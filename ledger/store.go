/*
store.go - Persistence interface for the engine state

PURPOSE:
  Defines the boundary between the engine and whatever holds the data
  between runs. The engine owns the in-memory State; a Store only loads it
  wholesale and saves it wholesale.

FULL-STATE SUBSTITUTION:
  Load() returns a complete snapshot that replaces the engine state.
  Save() receives the complete state after every committed command.
  There is no partial write and no merge.

ATOMIC COMMANDS:
  The engine calls Save() inside its commit. If Save() fails, the engine
  restores the pre-command snapshot and returns the error, so the memory
  view and the persisted view never diverge.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory (tests, -db=:memory:)
  - store/sqlite/sqlite.go: SQLite tables, rewritten in one SQL transaction
  - workbook/store.go: a single .xlsx workbook on disk

SEE ALSO:
  - engine.go: commit() uses Save()
*/
package ledger

import "context"

//go:generate mockgen -source=store.go -destination=store_mock.go -package=ledger

// Store persists the engine state.
type Store interface {
	// Load returns the persisted state. An empty store returns an empty State.
	Load(ctx context.Context) (*State, error)

	// Save replaces the persisted state with s.
	Save(ctx context.Context, s *State) error
}

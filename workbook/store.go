package workbook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/green/recycling-ledger/ledger"
)

// Store is a ledger.Store backed by a single .xlsx file. Save writes a
// temporary file next to the target and renames it into place, so a failed
// Save leaves the previous workbook intact.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load decodes the workbook. A missing file is an empty state.
func (s *Store) Load(_ context.Context) (*ledger.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ledger.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	return Decode(bytes.NewReader(raw))
}

func (s *Store) Save(ctx context.Context, st *ledger.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := Encode(&buf, st); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*.xlsx")
	if err != nil {
		return fmt.Errorf("failed to create temp workbook: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace workbook: %w", err)
	}
	return nil
}

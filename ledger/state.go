package ledger

import (
	"fmt"
	"regexp"
)

// =============================================================================
// STATE - The full in-memory snapshot
// =============================================================================

// State holds every collection the engine owns. Stores persist and load it
// wholesale: loading is a full-state substitution, never a merge.
//
// Transactions is append-only. FinancialEntries and Orders are appended by
// the engine but may later be edited or deleted through engine commands.
type State struct {
	Partners         []Partner        `json:"partners"`
	Materials        []Material       `json:"materials"`
	Batches          []Batch          `json:"batches"`
	Transactions     []Transaction    `json:"transactions"`
	FinancialEntries []FinancialEntry `json:"financial_entries"`
	Orders           []Order          `json:"orders"`
}

func NewState() *State {
	return &State{}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return NewState()
	}
	c := &State{
		Partners:         make([]Partner, len(s.Partners)),
		Materials:        append([]Material(nil), s.Materials...),
		Batches:          make([]Batch, len(s.Batches)),
		Transactions:     append([]Transaction(nil), s.Transactions...),
		FinancialEntries: make([]FinancialEntry, len(s.FinancialEntries)),
		Orders:           make([]Order, len(s.Orders)),
	}
	for i, p := range s.Partners {
		p.Roles = append(RoleSet(nil), p.Roles...)
		c.Partners[i] = p
	}
	for i, b := range s.Batches {
		c.Batches[i] = b.clone()
	}
	for i, f := range s.FinancialEntries {
		c.FinancialEntries[i] = f.clone()
	}
	for i, o := range s.Orders {
		c.Orders[i] = o.clone()
	}
	return c
}

// =============================================================================
// LOOKUPS
// =============================================================================
// Collections are small (single operation, hand-entered data) so lookups are
// linear scans over the ordered slices.

func (s *State) partnerIndex(id string) int {
	for i := range s.Partners {
		if s.Partners[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) partnerByCode(code string) int {
	for i := range s.Partners {
		if s.Partners[i].Code == code {
			return i
		}
	}
	return -1
}

func (s *State) materialIndex(id string) int {
	for i := range s.Materials {
		if s.Materials[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) materialByCode(code string) int {
	for i := range s.Materials {
		if s.Materials[i].Code == code {
			return i
		}
	}
	return -1
}

func (s *State) batchIndex(id string) int {
	for i := range s.Batches {
		if s.Batches[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) entryIndex(id string) int {
	for i := range s.FinancialEntries {
		if s.FinancialEntries[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) orderIndex(id string) int {
	for i := range s.Orders {
		if s.Orders[i].ID == id {
			return i
		}
	}
	return -1
}

// BatchCode resolves the current display key of a batch. Deleted batches
// resolve to an empty string.
func (s *State) BatchCode(id string) string {
	if i := s.batchIndex(id); i >= 0 {
		return s.Batches[i].Code()
	}
	return ""
}

// PartnerName resolves a partner id to its name, or the id itself when unknown.
func (s *State) PartnerName(id string) string {
	if i := s.partnerIndex(id); i >= 0 {
		return s.Partners[i].Name
	}
	return id
}

// nextSequence returns the next 1-based root sequence for a partner.
func (s *State) nextSequence(partnerID string) int {
	highest := 0
	for _, b := range s.Batches {
		if b.PartnerID == partnerID && b.ParentID == "" && b.Sequence > highest {
			highest = b.Sequence
		}
	}
	return highest + 1
}

// batchesReferencing returns display keys of batches for which match returns true.
func (s *State) batchesReferencing(match func(Batch) bool) []string {
	var codes []string
	for _, b := range s.Batches {
		if match(b) {
			codes = append(codes, b.Code())
		}
	}
	return codes
}

// =============================================================================
// VALIDATION - Applied to externally supplied snapshots
// =============================================================================

var codePattern = regexp.MustCompile(`^[0-9]{3}$`)

func validCode(code string) bool {
	return codePattern.MatchString(code)
}

// Validate checks the structural invariants a loaded snapshot must hold
// before it can replace the current state.
func (s *State) Validate() error {
	seen := make(map[string]bool)
	for _, p := range s.Partners {
		if !validCode(p.Code) {
			return fmt.Errorf("partner %q: %w", p.Code, ErrInvalidCode)
		}
		if seen[p.Code] {
			return fmt.Errorf("partner %q: %w", p.Code, ErrDuplicateCode)
		}
		seen[p.Code] = true
	}

	seen = make(map[string]bool)
	for _, m := range s.Materials {
		if !validCode(m.Code) {
			return fmt.Errorf("material %q: %w", m.Code, ErrInvalidCode)
		}
		if seen[m.Code] {
			return fmt.Errorf("material %q: %w", m.Code, ErrDuplicateCode)
		}
		seen[m.Code] = true
	}

	ids := make(map[string]bool)
	codes := make(map[string]bool)
	for _, b := range s.Batches {
		if b.ID == "" || ids[b.ID] {
			return invalid("batches", "missing or duplicate batch id %q", b.ID)
		}
		ids[b.ID] = true
		if codes[b.Code()] {
			return invalid("batches", "duplicate batch code %s", b.Code())
		}
		codes[b.Code()] = true
		if !b.Status.Valid() {
			return invalid("batches", "batch %s has unknown status %q", b.Code(), b.Status)
		}
		if b.WeightKg.IsNegative() {
			return invalid("batches", "batch %s has negative weight", b.Code())
		}
	}

	for _, tx := range s.Transactions {
		if !tx.Type.Valid() {
			return invalid("transactions", "transaction %s has unknown type %q", tx.ID, tx.Type)
		}
	}

	for _, f := range s.FinancialEntries {
		if f.Type != EntryPayable && f.Type != EntryReceivable {
			return invalid("financial_entries", "entry %s has unknown type %q", f.ID, f.Type)
		}
		if f.Status != EntryPending && f.Status != EntryPaid {
			return invalid("financial_entries", "entry %s has unknown status %q", f.ID, f.Status)
		}
	}

	for _, o := range s.Orders {
		if !o.Status.Valid() {
			return invalid("orders", "order %s has unknown status %q", o.OrderNumber, o.Status)
		}
	}
	return nil
}

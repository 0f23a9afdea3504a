/*
engine.go - The transition engine (command entry points)

PURPOSE:
  Engine is the only writer of the state. Callers (HTTP handlers, import
  routines) issue commands; each command reads the reference registries,
  mutates the batch ledger and appends to the transaction log, financial
  ledger and order book as required.

COMMAND FLOW:
  ┌────────────────────────────────────────────────────────────────┐
  │                                                                │
  │  lock ──▶ snapshot ──▶ validate ──▶ mutate ──▶ Store.Save      │
  │                           │                        │           │
  │                           ▼                        ▼           │
  │                      error: restore           error: restore   │
  │                                                                │
  └────────────────────────────────────────────────────────────────┘

  Every command validates fully before mutating. The snapshot/restore is
  the backstop that keeps memory and the store in step when Save fails.

CONCURRENCY:
  Commands are serialized with a mutex: one command runs to completion
  before the next is accepted. Read accessors return copies.

SEE ALSO:
  - transition.go: TransitionBatch
  - financial.go: financial entry commands
  - orders.go: order book commands
  - registry.go: partner/material commands
*/
package ledger

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	mu    sync.RWMutex
	state *State
	store Store
	log   logrus.FieldLogger
	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

// WithStore persists every committed command to s.
func WithStore(s Store) Option {
	return func(e *Engine) { e.store = s }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides the time source used for default dates and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the generator of internal ids.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New creates an engine over an empty state.
func New(opts ...Option) *Engine {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	e := &Engine{
		state: NewState(),
		log:   quiet,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open creates an engine and loads its state from store.
func Open(ctx context.Context, store Store, opts ...Option) (*Engine, error) {
	e := New(append(opts, WithStore(store))...)
	s, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if s == nil {
		s = NewState()
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("stored state is invalid: %w", err)
	}
	e.state = s
	return e, nil
}

// commit runs fn against the live state. On any error, from fn or from the
// store, the pre-command snapshot is restored.
func (e *Engine) commit(ctx context.Context, command string, fn func(s *State) error) error {
	snapshot := e.state.Clone()

	if err := fn(e.state); err != nil {
		e.state = snapshot
		e.log.WithField("command", command).WithError(err).Debug("command rejected")
		return err
	}

	if e.store != nil {
		if err := e.store.Save(ctx, e.state); err != nil {
			e.state = snapshot
			e.log.WithField("command", command).WithError(err).Error("failed to persist state")
			return fmt.Errorf("failed to persist %s: %w", command, err)
		}
	}

	e.log.WithField("command", command).Info("command committed")
	return nil
}

// =============================================================================
// SNAPSHOT / REPLACE - Full-state substitution
// =============================================================================

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() *State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Replace substitutes the whole state, e.g. after importing a workbook.
func (e *Engine) Replace(ctx context.Context, s *State) error {
	if s == nil {
		return invalid("state", "missing")
	}
	if err := s.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.commit(ctx, "replace", func(st *State) error {
		*st = *s.Clone()
		return nil
	})
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

func (e *Engine) Batch(id string) (Batch, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i := e.state.batchIndex(id)
	if i < 0 {
		return Batch{}, ErrBatchNotFound
	}
	return e.state.Batches[i].clone(), nil
}

// Batches returns batches, optionally restricted to the given statuses.
func (e *Engine) Batches(statuses ...Status) []Batch {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Batch, 0, len(e.state.Batches))
	for _, b := range e.state.Batches {
		if len(statuses) > 0 && !containsStatus(statuses, b.Status) {
			continue
		}
		out = append(out, b.clone())
	}
	return out
}

func containsStatus(list []Status, s Status) bool {
	for _, have := range list {
		if have == s {
			return true
		}
	}
	return false
}

// Transactions returns the full log in append order.
func (e *Engine) Transactions() []Transaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Transaction(nil), e.state.Transactions...)
}

// BatchTransactions returns the log entries of one batch in append order.
func (e *Engine) BatchTransactions(batchID string) []Transaction {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Transaction
	for _, tx := range e.state.Transactions {
		if tx.BatchID == batchID {
			out = append(out, tx)
		}
	}
	return out
}

// =============================================================================
// RECORD PURCHASE
// =============================================================================

// PurchaseParams describes an inbound purchase of raw material.
type PurchaseParams struct {
	PartnerID    string
	MaterialCode string
	WeightKg     decimal.Decimal
	PricePerKg   decimal.NullDecimal
	Date         time.Time // zero: now; may be backdated
	DueDate      time.Time // zero: same as Date
	Shipping     *Shipping
}

// RecordPurchase creates a raw batch, its purchase transaction and up to two
// payables (goods and freight).
func (e *Engine) RecordPurchase(ctx context.Context, p PurchaseParams) (*Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var created Batch
	err := e.commit(ctx, "purchase", func(s *State) error {
		pi := s.partnerIndex(p.PartnerID)
		if pi < 0 {
			return ErrPartnerNotFound
		}
		partner := s.Partners[pi]
		if !partner.Roles.Has(RoleSupplier) {
			return &RoleError{PartnerID: partner.ID, Role: RoleSupplier}
		}
		if s.materialByCode(p.MaterialCode) < 0 {
			return fmt.Errorf("material %q: %w", p.MaterialCode, ErrMaterialNotFound)
		}
		if !p.WeightKg.IsPositive() {
			return ErrInvalidWeight
		}
		if p.PricePerKg.Valid && p.PricePerKg.Decimal.IsNegative() {
			return invalid("price_per_kg", "must not be negative")
		}
		if err := validateShipping(s, p.Shipping); err != nil {
			return err
		}

		now := e.now()
		date := orDefault(p.Date, now)
		due := orDefault(p.DueDate, date)

		batch := Batch{
			ID:                 e.newID(),
			PartnerID:          partner.ID,
			PartnerCode:        partner.Code,
			Sequence:           s.nextSequence(partner.ID),
			MaterialCode:       p.MaterialCode,
			WeightKg:           p.WeightKg,
			Status:             StatusRaw,
			PurchasePricePerKg: p.PricePerKg,
			Shipping:           p.Shipping.clone(),
			CreatedAt:          date,
			UpdatedAt:          now,
		}
		s.Batches = append(s.Batches, batch)

		desc := "Purchase from " + partner.Name
		if p.PricePerKg.Valid {
			desc += fmt.Sprintf(" (%s/kg)", p.PricePerKg.Decimal.StringFixed(2))
		}
		s.Transactions = append(s.Transactions, Transaction{
			ID:          e.newID(),
			BatchID:     batch.ID,
			BatchCode:   batch.Code(),
			Type:        TxPurchase,
			WeightKg:    batch.WeightKg,
			Date:        date,
			Description: desc,
		})

		s.FinancialEntries = append(s.FinancialEntries,
			e.purchaseEntries(s, batch, partner, p.PricePerKg, date, due)...)

		created = batch.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"batch": created.Code(), "weight_kg": created.WeightKg.String()}).
		Info("purchase recorded")
	return &created, nil
}

// validateShipping checks the carrier reference and cost of a shipment.
func validateShipping(s *State, sh *Shipping) error {
	if sh == nil {
		return nil
	}
	if sh.Cost.IsNegative() {
		return invalid("shipping.cost", "must not be negative")
	}
	if sh.CarrierID != "" && s.partnerIndex(sh.CarrierID) < 0 {
		return fmt.Errorf("carrier %q: %w", sh.CarrierID, ErrPartnerNotFound)
	}
	return nil
}

func orDefault(t, def time.Time) time.Time {
	if t.IsZero() {
		return def
	}
	return t
}

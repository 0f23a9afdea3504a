/*
financial.go - Financial ledger (payables and receivables)

DERIVATION RULES:
  Entries are side effects of other commands, never created directly:

  Purchase with price/kg       → payable    "Purchase of raw material" (weight × price)
  Purchase freight, not FOB    → payable    "Freight" (carrier or generic carrier)
  Sale with price/kg           → receivable "Sale of material" (sold weight × price)
  Sale freight, not FOB        → payable    "Freight"
  Order with seller+commission → payable    "Seller commission" (keyed to order number)

  Every derived entry starts pending. Amounts are rounded to cents.

STATUS MACHINE:
  pending ──▶ paid     (one-way; records the payment date)
  paid    ──▶ paid     no-op, keeps the original payment date
  paid    ──▶ pending  rejected

CORRECTIONS:
  Unlike transactions, entries may be edited (due date, description) and
  deleted by the user, independently of the batch or order they came from.
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DERIVATION
// =============================================================================

func (e *Engine) purchaseEntries(s *State, b Batch, supplier Partner, price decimal.NullDecimal, date, due time.Time) []FinancialEntry {
	var entries []FinancialEntry
	if price.Valid && price.Decimal.IsPositive() {
		entries = append(entries, FinancialEntry{
			ID:            e.newID(),
			Type:          EntryPayable,
			OperationType: OpPurchase,
			PartnerID:     supplier.ID,
			BatchID:       b.ID,
			BatchCode:     b.Code(),
			Amount:        money(b.WeightKg.Mul(price.Decimal)),
			Date:          date,
			DueDate:       due,
			Status:        EntryPending,
			Description:   fmt.Sprintf("Payment for batch %s - %s", b.Code(), supplier.Name),
		})
	}
	if b.Shipping.Chargeable() {
		entries = append(entries, e.freightEntry(s, b, date, due))
	}
	return entries
}

func (e *Engine) saleEntries(s *State, b Batch, plan *transitionPlan) []FinancialEntry {
	var entries []FinancialEntry
	if plan.price.Valid && plan.price.Decimal.IsPositive() {
		entries = append(entries, FinancialEntry{
			ID:            e.newID(),
			Type:          EntryReceivable,
			OperationType: OpSale,
			PartnerID:     plan.partner.ID,
			BatchID:       b.ID,
			BatchCode:     b.Code(),
			Amount:        money(plan.weight.Mul(plan.price.Decimal)),
			Date:          plan.date,
			DueDate:       plan.due,
			Status:        EntryPending,
			Description:   fmt.Sprintf("Sale of batch %s - %s", b.Code(), plan.partner.Name),
		})
	}
	if plan.shipping.Chargeable() {
		entries = append(entries, e.freightEntry(s, b, plan.date, plan.due))
	}
	return entries
}

func (e *Engine) freightEntry(s *State, b Batch, date, due time.Time) FinancialEntry {
	payee := b.Shipping.Payee()
	return FinancialEntry{
		ID:            e.newID(),
		Type:          EntryPayable,
		OperationType: OpFreight,
		PartnerID:     payee,
		BatchID:       b.ID,
		BatchCode:     b.Code(),
		Amount:        money(b.Shipping.Cost),
		Date:          date,
		DueDate:       due,
		Status:        EntryPending,
		Description:   fmt.Sprintf("Freight for batch %s - %s", b.Code(), s.PartnerName(payee)),
	}
}

func (e *Engine) commissionEntry(o Order, seller Partner, due time.Time) FinancialEntry {
	return FinancialEntry{
		ID:            e.newID(),
		Type:          EntryPayable,
		OperationType: OpCommission,
		PartnerID:     seller.ID,
		OrderNumber:   o.OrderNumber,
		Amount:        money(o.CommissionAmount),
		Date:          o.Date,
		DueDate:       due,
		Status:        EntryPending,
		Description:   fmt.Sprintf("Commission on order %s - %s", o.OrderNumber, seller.Name),
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// EntryFilter restricts FinancialEntries. Zero fields match everything.
type EntryFilter struct {
	Type    EntryType
	Status  EntryStatus
	BatchID string
}

func (f EntryFilter) match(entry FinancialEntry) bool {
	return (f.Type == "" || entry.Type == f.Type) &&
		(f.Status == "" || entry.Status == f.Status) &&
		(f.BatchID == "" || entry.BatchID == f.BatchID)
}

func (e *Engine) FinancialEntries(filter EntryFilter) []FinancialEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []FinancialEntry
	for _, entry := range e.state.FinancialEntries {
		if filter.match(entry) {
			out = append(out, entry.clone())
		}
	}
	return out
}

func (e *Engine) FinancialEntry(id string) (FinancialEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i := e.state.entryIndex(id)
	if i < 0 {
		return FinancialEntry{}, ErrEntryNotFound
	}
	return e.state.FinancialEntries[i].clone(), nil
}

// =============================================================================
// COMMANDS
// =============================================================================

// SetFinancialEntryStatus moves an entry along pending → paid. A nil
// paymentDate defaults to the engine clock.
func (e *Engine) SetFinancialEntryStatus(ctx context.Context, id string, status EntryStatus, paymentDate *time.Time) (*FinancialEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var updated FinancialEntry
	err := e.commit(ctx, "entry_status", func(s *State) error {
		i := s.entryIndex(id)
		if i < 0 {
			return ErrEntryNotFound
		}
		entry := &s.FinancialEntries[i]

		switch {
		case status != EntryPending && status != EntryPaid:
			return invalid("status", "unknown status %q", status)
		case entry.Status == status:
			// idempotent
		case status == EntryPending:
			return fmt.Errorf("entry %s is paid: %w", entry.ID, ErrInvalidStatusTransition)
		default:
			paid := e.now()
			if paymentDate != nil && !paymentDate.IsZero() {
				paid = *paymentDate
			}
			entry.Status = EntryPaid
			entry.PaymentDate = &paid
		}
		updated = entry.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// FinancialEntryPatch holds the user-editable fields. Nil fields are kept.
type FinancialEntryPatch struct {
	DueDate     *time.Time
	Description *string
}

func (e *Engine) UpdateFinancialEntry(ctx context.Context, id string, patch FinancialEntryPatch) (*FinancialEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var updated FinancialEntry
	err := e.commit(ctx, "entry_update", func(s *State) error {
		i := s.entryIndex(id)
		if i < 0 {
			return ErrEntryNotFound
		}
		entry := &s.FinancialEntries[i]
		if patch.DueDate != nil {
			if patch.DueDate.IsZero() {
				return invalid("due_date", "required")
			}
			entry.DueDate = *patch.DueDate
		}
		if patch.Description != nil {
			entry.Description = *patch.Description
		}
		updated = entry.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteFinancialEntry removes an entry as a manual correction.
func (e *Engine) DeleteFinancialEntry(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.commit(ctx, "entry_delete", func(s *State) error {
		i := s.entryIndex(id)
		if i < 0 {
			return ErrEntryNotFound
		}
		s.FinancialEntries = append(s.FinancialEntries[:i], s.FinancialEntries[i+1:]...)
		return nil
	})
}

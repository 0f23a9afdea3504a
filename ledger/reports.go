package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REPORTS - Read-only aggregations over the current state
// =============================================================================

// InventorySummary aggregates batch weights.
type InventorySummary struct {
	BatchCount        int                        `json:"batch_count"`
	WeightByStatus    map[Status]decimal.Decimal `json:"weight_by_status"`
	InStockWeight     decimal.Decimal            `json:"in_stock_weight"`
	InStockByMaterial map[string]decimal.Decimal `json:"in_stock_by_material"`
}

// InventorySummary reports weight per status and, excluding sold batches,
// per material code.
func (e *Engine) InventorySummary() InventorySummary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sum := InventorySummary{
		BatchCount:        len(e.state.Batches),
		WeightByStatus:    make(map[Status]decimal.Decimal, len(Statuses)),
		InStockWeight:     decimal.Zero,
		InStockByMaterial: make(map[string]decimal.Decimal),
	}
	for _, st := range Statuses {
		sum.WeightByStatus[st] = decimal.Zero
	}
	for _, b := range e.state.Batches {
		sum.WeightByStatus[b.Status] = sum.WeightByStatus[b.Status].Add(b.WeightKg)
		if b.Status == StatusSold {
			continue
		}
		sum.InStockWeight = sum.InStockWeight.Add(b.WeightKg)
		current, ok := sum.InStockByMaterial[b.MaterialCode]
		if !ok {
			current = decimal.Zero
		}
		sum.InStockByMaterial[b.MaterialCode] = current.Add(b.WeightKg)
	}
	return sum
}

// FinancialTotals sums the financial ledger by type and status.
type FinancialTotals struct {
	PendingPayable    decimal.Decimal `json:"pending_payable"`
	PendingReceivable decimal.Decimal `json:"pending_receivable"`
	PaidPayable       decimal.Decimal `json:"paid_payable"`
	PaidReceivable    decimal.Decimal `json:"paid_receivable"`
}

// Balance is pending receivables minus pending payables.
func (t FinancialTotals) Balance() decimal.Decimal {
	return t.PendingReceivable.Sub(t.PendingPayable)
}

func (e *Engine) FinancialTotals() FinancialTotals {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t := FinancialTotals{
		PendingPayable:    decimal.Zero,
		PendingReceivable: decimal.Zero,
		PaidPayable:       decimal.Zero,
		PaidReceivable:    decimal.Zero,
	}
	for _, f := range e.state.FinancialEntries {
		switch {
		case f.Type == EntryPayable && f.Status == EntryPending:
			t.PendingPayable = t.PendingPayable.Add(f.Amount)
		case f.Type == EntryPayable:
			t.PaidPayable = t.PaidPayable.Add(f.Amount)
		case f.Status == EntryPending:
			t.PendingReceivable = t.PendingReceivable.Add(f.Amount)
		default:
			t.PaidReceivable = t.PaidReceivable.Add(f.Amount)
		}
	}
	return t
}

// HistoryFilter restricts History. Zero fields match everything; From and
// To are inclusive.
type HistoryFilter struct {
	Query   string
	BatchID string
	Types   []TransactionType
	From    time.Time
	To      time.Time
}

// HistoryEntry is a transaction resolved for display.
type HistoryEntry struct {
	Transaction
	CurrentBatchCode string `json:"current_batch_code,omitempty"` // empty when the batch was deleted
	PartnerName      string `json:"partner_name,omitempty"`
	MaterialName     string `json:"material_name,omitempty"`
}

// History returns matching transactions, newest first. Records with equal
// dates keep their log order reversed.
func (e *Engine) History(filter HistoryFilter) []HistoryEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.state
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	var out []HistoryEntry
	for i := len(s.Transactions) - 1; i >= 0; i-- {
		tx := s.Transactions[i]
		if filter.BatchID != "" && tx.BatchID != filter.BatchID {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, tx.Type) {
			continue
		}
		if !filter.From.IsZero() && tx.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && tx.Date.After(filter.To) {
			continue
		}

		h := HistoryEntry{Transaction: tx}
		if bi := s.batchIndex(tx.BatchID); bi >= 0 {
			b := s.Batches[bi]
			h.CurrentBatchCode = b.Code()
			if pi := s.partnerIndex(b.PartnerID); pi >= 0 {
				h.PartnerName = s.Partners[pi].Name
			}
			if mi := s.materialByCode(b.MaterialCode); mi >= 0 {
				h.MaterialName = s.Materials[mi].Name
			}
		}
		if query != "" && !h.matches(query) {
			continue
		}
		out = append(out, h)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

func (h HistoryEntry) matches(query string) bool {
	for _, field := range []string{h.BatchCode, h.CurrentBatchCode, h.Description, h.PartnerName, h.MaterialName} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func containsType(list []TransactionType, t TransactionType) bool {
	for _, have := range list {
		if have == t {
			return true
		}
	}
	return false
}

// BatchFinancialEntries returns the entries derived for one batch.
func (e *Engine) BatchFinancialEntries(batchID string) []FinancialEntry {
	return e.FinancialEntries(EntryFilter{BatchID: batchID})
}

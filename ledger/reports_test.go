package ledger_test

import (
	"testing"
	"time"

	"github.com/green/recycling-ledger/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventorySummary(t *testing.T) {
	// GIVEN: One raw batch and one finished batch partly sold
	f := newFixture(t)
	f.purchase(t, "500", "")
	b := f.finished(t, "1000", "900")
	f.transition(t, b.ID, ledger.StatusSold, ledger.TransitionContext{WeightKg: nd("300"), PartnerID: f.customer.ID})

	// WHEN: The inventory is summarized
	sum := f.engine.InventorySummary()

	// THEN: Weights are grouped by status and sold weight is out of stock
	assert.Equal(t, 3, sum.BatchCount)
	assertDecimal(t, "500", sum.WeightByStatus[ledger.StatusRaw])
	assertDecimal(t, "600", sum.WeightByStatus[ledger.StatusFinished])
	assertDecimal(t, "300", sum.WeightByStatus[ledger.StatusSold])
	assertDecimal(t, "0", sum.WeightByStatus[ledger.StatusExtruding])
	assertDecimal(t, "1100", sum.InStockWeight)
	assertDecimal(t, "1100", sum.InStockByMaterial["010"])
}

func TestFinancialTotals(t *testing.T) {
	// GIVEN: A 2500 payable (paid) and a 2700 receivable (pending)
	f := newFixture(t)
	b := f.finished(t, "1000", "900")
	f.transition(t, b.ID, ledger.StatusSold, ledger.TransitionContext{WeightKg: nd("900"), PartnerID: f.customer.ID, PricePerKg: nd("3")})
	payable := f.engine.FinancialEntries(ledger.EntryFilter{Type: ledger.EntryPayable})[0]
	_, err := f.engine.SetFinancialEntryStatus(f.ctx, payable.ID, ledger.EntryPaid, nil)
	require.NoError(t, err)

	// WHEN: Totals are computed
	totals := f.engine.FinancialTotals()

	// THEN: Each bucket is summed and the balance counts pending entries only
	assertDecimal(t, "0", totals.PendingPayable)
	assertDecimal(t, "2500", totals.PaidPayable)
	assertDecimal(t, "2700", totals.PendingReceivable)
	assertDecimal(t, "0", totals.PaidReceivable)
	assertDecimal(t, "2700", totals.Balance())
}

func TestHistory(t *testing.T) {
	// GIVEN: A purchase yesterday and a processed batch today
	f := newFixture(t)
	yesterday := testNow.AddDate(0, 0, -1)
	old, err := f.engine.RecordPurchase(f.ctx, ledger.PurchaseParams{
		PartnerID: f.supplier.ID, MaterialCode: "020", WeightKg: d("50"), Date: yesterday,
	})
	require.NoError(t, err)
	b := f.finished(t, "1000", "950")

	t.Run("newest first", func(t *testing.T) {
		all := f.engine.History(ledger.HistoryFilter{})
		require.Len(t, all, 5)
		assert.Equal(t, ledger.TxLoss, all[0].Type)
		assert.Equal(t, old.ID, all[len(all)-1].BatchID)
	})

	t.Run("resolves names", func(t *testing.T) {
		h := f.engine.History(ledger.HistoryFilter{BatchID: old.ID})
		require.Len(t, h, 1)
		assert.Equal(t, "Fornecedor Exemplo Silva", h[0].PartnerName)
		assert.Equal(t, "PP", h[0].MaterialName)
	})

	t.Run("query matches material name case-insensitively", func(t *testing.T) {
		h := f.engine.History(ledger.HistoryFilter{Query: "pebd"})
		assert.Len(t, h, 4)
		for _, e := range h {
			assert.Equal(t, b.ID, e.BatchID)
		}
	})

	t.Run("type filter", func(t *testing.T) {
		h := f.engine.History(ledger.HistoryFilter{Types: []ledger.TransactionType{ledger.TxLoss, ledger.TxGain}})
		require.Len(t, h, 1)
		assertDecimal(t, "50", h[0].WeightKg)
	})

	t.Run("date range", func(t *testing.T) {
		h := f.engine.History(ledger.HistoryFilter{To: testNow.Add(-time.Hour)})
		require.Len(t, h, 1)
		assert.Equal(t, old.ID, h[0].BatchID)
	})

	t.Run("deleted batch keeps its records", func(t *testing.T) {
		require.NoError(t, f.engine.DeleteBatch(f.ctx, old.ID))
		h := f.engine.History(ledger.HistoryFilter{BatchID: old.ID})
		require.Len(t, h, 1)
		assert.Empty(t, h[0].CurrentBatchCode)
		assert.Equal(t, "012/001/020", h[0].BatchCode)
	})
}

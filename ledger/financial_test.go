package ledger_test

import (
	"testing"
	"time"

	"github.com/green/recycling-ledger/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetFinancialEntryStatus(t *testing.T) {
	// GIVEN: A pending purchase payable
	f := newFixture(t)
	b := f.purchase(t, "1000", "2.00")
	entry := f.engine.BatchFinancialEntries(b.ID)[0]
	paidOn := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	// WHEN: It is paid with an explicit date
	paid, err := f.engine.SetFinancialEntryStatus(f.ctx, entry.ID, ledger.EntryPaid, &paidOn)
	require.NoError(t, err)

	// THEN: The payment date is recorded
	assert.Equal(t, ledger.EntryPaid, paid.Status)
	require.NotNil(t, paid.PaymentDate)
	assert.Equal(t, paidOn, *paid.PaymentDate)

	// WHEN: It is paid again
	again, err := f.engine.SetFinancialEntryStatus(f.ctx, entry.ID, ledger.EntryPaid, nil)
	require.NoError(t, err)

	// THEN: The first payment date is kept
	assert.Equal(t, paidOn, *again.PaymentDate)

	// WHEN: It is moved back to pending
	_, err = f.engine.SetFinancialEntryStatus(f.ctx, entry.ID, ledger.EntryPending, nil)

	// THEN: The move is rejected
	require.ErrorIs(t, err, ledger.ErrInvalidStatusTransition)
	assert.True(t, ledger.IsClientError(err))
	got, err := f.engine.FinancialEntry(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.EntryPaid, got.Status)
}

func TestSetFinancialEntryStatus_DefaultsToClock(t *testing.T) {
	f := newFixture(t)
	b := f.purchase(t, "1000", "2.00")
	entry := f.engine.BatchFinancialEntries(b.ID)[0]

	paid, err := f.engine.SetFinancialEntryStatus(f.ctx, entry.ID, ledger.EntryPaid, nil)

	require.NoError(t, err)
	assert.Equal(t, testNow, *paid.PaymentDate)
}

func TestSetFinancialEntryStatus_Rejections(t *testing.T) {
	f := newFixture(t)
	b := f.purchase(t, "1000", "2.00")
	entry := f.engine.BatchFinancialEntries(b.ID)[0]

	_, err := f.engine.SetFinancialEntryStatus(f.ctx, "missing", ledger.EntryPaid, nil)
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)

	_, err = f.engine.SetFinancialEntryStatus(f.ctx, entry.ID, ledger.EntryStatus("void"), nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestUpdateAndDeleteFinancialEntry(t *testing.T) {
	// GIVEN: A purchase with goods and freight payables
	f := newFixture(t)
	b, err := f.engine.RecordPurchase(f.ctx, ledger.PurchaseParams{
		PartnerID:    f.supplier.ID,
		MaterialCode: "010",
		WeightKg:     d("1000"),
		PricePerKg:   nd("2"),
		Shipping:     &ledger.Shipping{Cost: d("150")},
	})
	require.NoError(t, err)
	entries := f.engine.BatchFinancialEntries(b.ID)
	require.Len(t, entries, 2)

	// WHEN: The due date and description of the first are corrected
	due := testNow.AddDate(0, 0, 30)
	desc := "Boleto 123"
	updated, err := f.engine.UpdateFinancialEntry(f.ctx, entries[0].ID, ledger.FinancialEntryPatch{DueDate: &due, Description: &desc})
	require.NoError(t, err)

	// THEN: Only those fields change
	assert.Equal(t, due, updated.DueDate)
	assert.Equal(t, desc, updated.Description)
	assertDecimal(t, "2000", updated.Amount)

	// WHEN: The freight entry is deleted
	require.NoError(t, f.engine.DeleteFinancialEntry(f.ctx, entries[1].ID))

	// THEN: The batch and its history are untouched
	assert.Len(t, f.engine.BatchFinancialEntries(b.ID), 1)
	assert.Len(t, f.engine.BatchTransactions(b.ID), 1)
	assert.ErrorIs(t, f.engine.DeleteFinancialEntry(f.ctx, entries[1].ID), ledger.ErrEntryNotFound)

	var zero time.Time
	_, err = f.engine.UpdateFinancialEntry(f.ctx, entries[0].ID, ledger.FinancialEntryPatch{DueDate: &zero})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestFinancialEntries_Filter(t *testing.T) {
	// GIVEN: One payable and one receivable
	f := newFixture(t)
	b := f.finished(t, "1000", "1000")
	f.transition(t, b.ID, ledger.StatusSold, ledger.TransitionContext{WeightKg: nd("1000"), PartnerID: f.customer.ID, PricePerKg: nd("3")})

	// THEN: Filters select by type and status
	assert.Len(t, f.engine.FinancialEntries(ledger.EntryFilter{}), 2)
	payables := f.engine.FinancialEntries(ledger.EntryFilter{Type: ledger.EntryPayable})
	require.Len(t, payables, 1)
	assert.Equal(t, ledger.OpPurchase, payables[0].OperationType)
	receivables := f.engine.FinancialEntries(ledger.EntryFilter{Type: ledger.EntryReceivable, Status: ledger.EntryPending})
	require.Len(t, receivables, 1)
	assertDecimal(t, "3000", receivables[0].Amount)
	assert.Empty(t, f.engine.FinancialEntries(ledger.EntryFilter{Status: ledger.EntryPaid}))
}

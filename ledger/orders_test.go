package ledger_test

import (
	"testing"

	"github.com/green/recycling-ledger/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) order(t *testing.T, p ledger.OrderParams) ledger.Order {
	t.Helper()
	if p.CustomerID == "" {
		p.CustomerID = f.customer.ID
	}
	if len(p.Items) == 0 {
		p.Items = []ledger.OrderItemParams{{Description: "PEBD granulado", Quantity: d("1000"), UnitPrice: d("3.00")}}
	}
	o, err := f.engine.CreateOrder(f.ctx, p)
	require.NoError(t, err)
	return *o
}

func TestCreateOrder(t *testing.T) {
	// GIVEN: A customer and a seller
	f := newFixture(t)

	// WHEN: An order with a commission is created without a number
	o := f.order(t, ledger.OrderParams{
		SellerID:         f.seller.ID,
		CommissionAmount: d("150"),
		Items: []ledger.OrderItemParams{
			{Description: "PEBD granulado", Quantity: d("1000"), UnitPrice: d("3.00")},
			{Description: "PP moído", Quantity: d("250.5"), UnitPrice: d("1.333")},
		},
	})

	// THEN: It is numbered, pending and totalled
	assert.Equal(t, "0001", o.OrderNumber)
	assert.Equal(t, ledger.OrderPending, o.Status)
	assert.Equal(t, testNow, o.Date)
	require.Len(t, o.Items, 2)
	assertDecimal(t, "333.92", o.Items[1].Total)
	assertDecimal(t, "3333.92", o.TotalAmount)
	assertDecimal(t, "0", o.Items[0].DeliveredQuantity)

	// AND: The seller's commission payable is keyed to the order number
	commissions := entriesOf(f.engine.FinancialEntries(ledger.EntryFilter{}), ledger.OpCommission)
	require.Len(t, commissions, 1)
	assert.Equal(t, f.seller.ID, commissions[0].PartnerID)
	assert.Equal(t, "0001", commissions[0].OrderNumber)
	assert.Empty(t, commissions[0].BatchID)
	assertDecimal(t, "150", commissions[0].Amount)

	// WHEN: A second order is created
	second := f.order(t, ledger.OrderParams{})

	// THEN: It gets the next number and no commission
	assert.Equal(t, "0002", second.OrderNumber)
	assert.Len(t, entriesOf(f.engine.FinancialEntries(ledger.EntryFilter{}), ledger.OpCommission), 1)
}

func TestCreateOrder_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		params  func(f *fixture) ledger.OrderParams
		wantErr error
	}{
		{
			name: "customer without role",
			params: func(f *fixture) ledger.OrderParams {
				return ledger.OrderParams{CustomerID: f.supplier.ID}
			},
			wantErr: ledger.ErrPartnerRole,
		},
		{
			name: "seller without role",
			params: func(f *fixture) ledger.OrderParams {
				return ledger.OrderParams{SellerID: f.customer.ID}
			},
			wantErr: ledger.ErrPartnerRole,
		},
		{
			name: "negative commission",
			params: func(f *fixture) ledger.OrderParams {
				return ledger.OrderParams{SellerID: f.seller.ID, CommissionAmount: d("-1")}
			},
			wantErr: ledger.ErrInvalidInput,
		},
		{
			name: "zero quantity",
			params: func(f *fixture) ledger.OrderParams {
				return ledger.OrderParams{Items: []ledger.OrderItemParams{{Description: "x", Quantity: decimal.Zero}}}
			},
			wantErr: ledger.ErrInvalidInput,
		},
		{
			name: "duplicate number",
			params: func(f *fixture) ledger.OrderParams {
				return ledger.OrderParams{OrderNumber: "PED-1"}
			},
			wantErr: ledger.ErrDuplicateCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.order(t, ledger.OrderParams{OrderNumber: "PED-1"})

			p := tt.params(f)
			if p.CustomerID == "" {
				p.CustomerID = f.customer.ID
			}
			if len(p.Items) == 0 {
				p.Items = []ledger.OrderItemParams{{Description: "x", Quantity: d("1"), UnitPrice: d("1")}}
			}
			_, err := f.engine.CreateOrder(f.ctx, p)

			require.ErrorIs(t, err, tt.wantErr)
			assert.Len(t, f.engine.Orders(), 1)
		})
	}
}

func TestSaleFulfilsOrder(t *testing.T) {
	// GIVEN: An order for 1000 kg and a finished batch of 1000 kg
	f := newFixture(t)
	o := f.order(t, ledger.OrderParams{})
	itemID := o.Items[0].ID
	b := f.finished(t, "1000", "1000")

	// WHEN: 400 kg are sold against the order item
	res := f.transition(t, b.ID, ledger.StatusSold, ledger.TransitionContext{
		WeightKg:    nd("400"),
		PartnerID:   f.customer.ID,
		PricePerKg:  nd("3"),
		OrderID:     o.ID,
		OrderItemID: itemID,
	})

	// THEN: The item records the delivery and the order is confirmed
	require.NotNil(t, res.Order)
	assertDecimal(t, "400", res.Order.Items[0].DeliveredQuantity)
	assert.Equal(t, ledger.OrderConfirmed, res.Order.Status)

	// WHEN: The remaining 600 kg are sold against the same item
	res = f.transition(t, b.ID, ledger.StatusSold, ledger.TransitionContext{
		WeightKg:    nd("600"),
		PartnerID:   f.customer.ID,
		OrderID:     o.ID,
		OrderItemID: itemID,
	})

	// THEN: The order is delivered
	assert.Equal(t, ledger.OrderDelivered, res.Order.Status)
	got, err := f.engine.Order(o.ID)
	require.NoError(t, err)
	assertDecimal(t, "1000", got.Items[0].DeliveredQuantity)
	assert.True(t, got.Items[0].Delivered())
	assertDecimal(t, "0", got.Items[0].Outstanding())
}

func TestSaleFinalizesOrder(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, ledger.OrderParams{})
	b := f.finished(t, "1000", "1000")

	res := f.transition(t, b.ID, ledger.StatusSold, ledger.TransitionContext{
		WeightKg:      nd("100"),
		PartnerID:     f.customer.ID,
		OrderID:       o.ID,
		OrderItemID:   o.Items[0].ID,
		FinalizeOrder: true,
	})

	assert.Equal(t, ledger.OrderDelivered, res.Order.Status)
	assertDecimal(t, "100", res.Order.Items[0].DeliveredQuantity)
}

func TestSaleAgainstOrder_Rejections(t *testing.T) {
	// GIVEN: A cancelled order and a finished batch
	f := newFixture(t)
	o := f.order(t, ledger.OrderParams{})
	b := f.finished(t, "1000", "1000")
	_, err := f.engine.CancelOrder(f.ctx, o.ID)
	require.NoError(t, err)
	before := f.engine.Snapshot()

	sell := func(orderID, itemID string) error {
		_, err := f.engine.TransitionBatch(f.ctx, b.ID, ledger.StatusSold, ledger.TransitionContext{
			WeightKg:    nd("100"),
			PartnerID:   f.customer.ID,
			OrderID:     orderID,
			OrderItemID: itemID,
		})
		return err
	}

	// THEN: Each bad link is rejected without any write
	assert.ErrorIs(t, sell(o.ID, o.Items[0].ID), ledger.ErrOrderClosed)
	assert.ErrorIs(t, sell("missing", "x"), ledger.ErrOrderNotFound)
	assert.ErrorIs(t, sell(o.ID, ""), ledger.ErrInvalidInput)
	assert.Equal(t, before, f.engine.Snapshot())

	// AND: A bad item on a live order is rejected too
	live := f.order(t, ledger.OrderParams{})
	assert.ErrorIs(t, sell(live.ID, "missing"), ledger.ErrOrderItemNotFound)
}

func TestUpdateOrder_KeepsDeliveredQuantities(t *testing.T) {
	// GIVEN: An order with 400 kg delivered
	f := newFixture(t)
	o := f.order(t, ledger.OrderParams{SellerID: f.seller.ID, CommissionAmount: d("90")})
	b := f.finished(t, "1000", "1000")
	f.transition(t, b.ID, ledger.StatusSold, ledger.TransitionContext{
		WeightKg: nd("400"), PartnerID: f.customer.ID, OrderID: o.ID, OrderItemID: o.Items[0].ID,
	})

	// WHEN: The items are replaced, keeping the first and adding one
	items := []ledger.OrderItemParams{
		{ID: o.Items[0].ID, Description: "PEBD granulado", Quantity: d("400"), UnitPrice: d("3.10")},
		{Description: "PP moído", Quantity: d("50"), UnitPrice: d("2")},
	}
	notes := "revised"
	updated, err := f.engine.UpdateOrder(f.ctx, o.ID, ledger.OrderPatch{Items: &items, Notes: &notes})
	require.NoError(t, err)

	// THEN: The kept item keeps its delivered quantity and the total follows the items
	require.Len(t, updated.Items, 2)
	assert.Equal(t, o.Items[0].ID, updated.Items[0].ID)
	assertDecimal(t, "400", updated.Items[0].DeliveredQuantity)
	assertDecimal(t, "0", updated.Items[1].DeliveredQuantity)
	assertDecimal(t, "1340", updated.TotalAmount)
	assert.Equal(t, ledger.OrderConfirmed, updated.Status)
	assert.Equal(t, "revised", updated.Notes)

	// AND: The commission payable is not regenerated
	assert.Len(t, entriesOf(f.engine.FinancialEntries(ledger.EntryFilter{}), ledger.OpCommission), 1)

	// AND: Repeating an item id is rejected and leaves the order as it was
	dup := []ledger.OrderItemParams{
		{ID: o.Items[0].ID, Description: "a", Quantity: d("100"), UnitPrice: d("1")},
		{ID: o.Items[0].ID, Description: "b", Quantity: d("100"), UnitPrice: d("1")},
	}
	_, err = f.engine.UpdateOrder(f.ctx, o.ID, ledger.OrderPatch{Items: &dup})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "items[1].id", ve.Field)

	current, err := f.engine.Order(o.ID)
	require.NoError(t, err)
	assert.Len(t, current.Items, 2)
	assertDecimal(t, "1340", current.TotalAmount)
}

func TestCancelAndDeleteOrder(t *testing.T) {
	// GIVEN: An order with a sale already linked
	f := newFixture(t)
	o := f.order(t, ledger.OrderParams{})
	b := f.finished(t, "1000", "1000")
	f.transition(t, b.ID, ledger.StatusSold, ledger.TransitionContext{
		WeightKg: nd("1000"), PartnerID: f.customer.ID, PricePerKg: nd("3"), OrderID: o.ID, OrderItemID: o.Items[0].ID,
	})
	entries := len(f.engine.FinancialEntries(ledger.EntryFilter{}))

	// WHEN: It is cancelled and then deleted
	cancelled, err := f.engine.CancelOrder(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.OrderCancelled, cancelled.Status)
	require.NoError(t, f.engine.DeleteOrder(f.ctx, o.ID))

	// THEN: The sold batch and its receivable remain
	got, err := f.engine.Batch(b.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSold, got.Status)
	assert.Len(t, f.engine.FinancialEntries(ledger.EntryFilter{}), entries)

	_, err = f.engine.Order(o.ID)
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
	assert.ErrorIs(t, f.engine.DeleteOrder(f.ctx, o.ID), ledger.ErrOrderNotFound)
}

package factory_test

import (
	"context"
	"testing"
	"time"

	"github.com/green/recycling-ledger/factory"
	"github.com/green/recycling-ledger/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func load(t *testing.T, raw string) (*ledger.Engine, *factory.Result) {
	t.Helper()
	f := factory.NewScenarioFactory().WithClock(clock)
	sc, err := f.Parse(raw)
	require.NoError(t, err)

	e := ledger.New(ledger.WithClock(clock))
	res, err := f.Apply(context.Background(), e, sc)
	require.NoError(t, err)
	return e, res
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// =============================================================================
// PRESETS
// =============================================================================

func TestPresets_AllParseAndApply(t *testing.T) {
	for _, p := range factory.Presets() {
		t.Run(p.ID, func(t *testing.T) {
			e, _ := load(t, p.JSON)
			assert.NotEmpty(t, e.Partners())
			assert.NotEmpty(t, e.Batches())
		})
	}
}

func TestDemoScenario(t *testing.T) {
	e, res := load(t, factory.DemoJSON)

	b, err := e.Batch(res.Batches["demo-batch"])
	require.NoError(t, err)
	assert.Equal(t, "012/001/010", b.Code())
	assert.Equal(t, ledger.StatusRaw, b.Status)
	assertDecimal(t, "1250", b.WeightKg)
	assert.Empty(t, e.FinancialEntries(ledger.EntryFilter{}))
}

func TestFullCycleScenario(t *testing.T) {
	// GIVEN: The full-cycle preset
	// WHEN: It is applied to an empty engine
	e, res := load(t, factory.FullCycleJSON)

	// THEN: Every split got a deterministic key
	codes := map[string]string{
		"b1":          "012/001/010",
		"b1-ext":      "012/001/010/E-01",
		"b1-sale":     "012/001/010/S-02",
		"b1-ext-sale": "012/001/010/E-01/S-01",
		"b2":          "013/001/020",
	}
	for ref, want := range codes {
		b, err := e.Batch(res.Batches[ref])
		require.NoError(t, err, ref)
		assert.Equal(t, want, b.Code(), ref)
	}

	// AND: Remainders stay in their parents
	root, _ := e.Batch(res.Batches["b1"])
	assertDecimal(t, "80", root.WeightKg)
	assert.Equal(t, ledger.StatusFinished, root.Status)
	ext, _ := e.Batch(res.Batches["b1-ext"])
	assertDecimal(t, "270", ext.WeightKg)
	assert.Equal(t, ledger.StatusExtruded, ext.Status)

	// AND: Backdated purchases carry their date
	assert.Equal(t, testNow.AddDate(0, 0, -20), root.CreatedAt)

	// AND: The order was fulfilled by both sales
	o, err := e.Order(res.Orders["o1"])
	require.NoError(t, err)
	assert.Equal(t, ledger.OrderDelivered, o.Status)
	assertDecimal(t, "1500", o.Items[0].DeliveredQuantity)

	// AND: The ledgers hold every derived record
	assert.Len(t, e.Transactions(), 10)
	entries := e.FinancialEntries(ledger.EntryFilter{})
	assert.Len(t, entries, 7)
	totals := e.FinancialTotals()
	assertDecimal(t, "5870", totals.PendingPayable)
	assertDecimal(t, "4800", totals.PendingReceivable)
}

func TestReclassificationScenario(t *testing.T) {
	e, res := load(t, factory.ReclassificationJSON)

	b, err := e.Batch(res.Batches["mix"])
	require.NoError(t, err)
	assert.Equal(t, "021/001/020", b.Code())

	txs := e.BatchTransactions(b.ID)
	require.Len(t, txs, 4)
	assert.Equal(t, ledger.TxGain, txs[3].Type)
	assertDecimal(t, "12", txs[3].WeightKg)
}

// =============================================================================
// PARSE / APPLY ERRORS
// =============================================================================

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "malformed", raw: `{"id": `},
		{name: "unknown field", raw: `{"id": "x", "colour": "red"}`},
		{name: "missing id", raw: `{"partners": []}`},
		{name: "unknown role", raw: `{"id": "x", "partners": [{"code": "001", "name": "A", "roles": ["broker"]}]}`},
		{name: "unknown status", raw: `{"id": "x", "purchases": [{"ref": "a", "steps": [{"status": "melted"}]}]}`},
		{name: "undefined batch ref", raw: `{"id": "x", "purchases": [{"ref": "a", "steps": [{"status": "processing", "batch": "zz"}]}]}`},
		{name: "undefined order ref", raw: `{"id": "x", "purchases": [{"ref": "a", "steps": [{"status": "sold", "order": "o9"}]}]}`},
		{name: "duplicate ref", raw: `{"id": "x", "purchases": [{"ref": "a"}, {"ref": "a"}]}`},
	}

	f := factory.NewScenarioFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Parse(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestApply_StopsAtFirstRejectedCommand(t *testing.T) {
	// GIVEN: A scenario whose sale exceeds the batch weight
	raw := `{
	  "id": "oversell",
	  "partners": [
	    {"code": "012", "name": "Fornecedor", "roles": ["supplier"]},
	    {"code": "045", "name": "Cliente", "roles": ["customer"]}
	  ],
	  "materials": [{"code": "010", "name": "PEBD"}],
	  "purchases": [
	    {"ref": "a", "partner": "012", "material": "010", "weight_kg": 100,
	     "steps": [
	       {"status": "processing"},
	       {"status": "finished", "weight_kg": 100},
	       {"status": "sold", "weight_kg": 150, "partner": "045"}
	     ]}
	  ]
	}`
	f := factory.NewScenarioFactory()
	sc, err := f.Parse(raw)
	require.NoError(t, err)
	e := ledger.New()

	// WHEN: It is applied
	_, err = f.Apply(context.Background(), e, sc)

	// THEN: The engine error surfaces with its position
	require.ErrorIs(t, err, ledger.ErrInsufficientWeight)
	assert.Contains(t, err.Error(), "purchase a: step 2 (sold)")

	// AND: Earlier commands stay committed
	batches := e.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, ledger.StatusFinished, batches[0].Status)
}

func TestApply_UnknownPartnerCode(t *testing.T) {
	f := factory.NewScenarioFactory()
	sc, err := f.Parse(`{"id": "x", "materials": [{"code": "010", "name": "PEBD"}],
	  "purchases": [{"ref": "a", "partner": "404", "material": "010", "weight_kg": 1}]}`)
	require.NoError(t, err)

	_, err = f.Apply(context.Background(), ledger.New(), sc)

	assert.ErrorIs(t, err, ledger.ErrPartnerNotFound)
}

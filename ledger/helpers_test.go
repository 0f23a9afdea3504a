package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/green/recycling-ledger/ledger"
	"github.com/green/recycling-ledger/ledger/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	engine *ledger.Engine
	store  *store.Memory

	supplier ledger.Partner // 012
	customer ledger.Partner // 045
	extruder ledger.Partner // 077
	seller   ledger.Partner // 088
	carrier  ledger.Partner // 099
}

// sequentialIDs makes generated ids predictable: id-001, id-002, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func newEngine(opts ...ledger.Option) *ledger.Engine {
	base := []ledger.Option{
		ledger.WithClock(func() time.Time { return testNow }),
		ledger.WithIDGenerator(sequentialIDs()),
	}
	return ledger.New(append(base, opts...)...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := store.NewMemory()
	f := &fixture{
		ctx:    context.Background(),
		engine: newEngine(ledger.WithStore(mem)),
		store:  mem,
	}
	f.supplier = f.partner(t, "012", "Fornecedor Exemplo Silva", ledger.RoleSupplier)
	f.customer = f.partner(t, "045", "Plásticos Nordeste", ledger.RoleCustomer)
	f.extruder = f.partner(t, "077", "Extrusora Norte", ledger.RoleServiceProvider)
	f.seller = f.partner(t, "088", "Carlos Representações", ledger.RoleSeller)
	f.carrier = f.partner(t, "099", "Transportes Rápidos", ledger.RoleServiceProvider)
	f.material(t, "010", "PEBD", "3915.10.00")
	f.material(t, "020", "PP", "3915.90.00")
	return f
}

func (f *fixture) partner(t *testing.T, code, name string, roles ...ledger.Role) ledger.Partner {
	t.Helper()
	p, err := f.engine.CreatePartner(f.ctx, ledger.PartnerParams{Code: code, Name: name, Roles: roles})
	require.NoError(t, err)
	return *p
}

func (f *fixture) material(t *testing.T, code, name, ncm string) ledger.Material {
	t.Helper()
	m, err := f.engine.CreateMaterial(f.ctx, ledger.MaterialParams{Code: code, Name: name, NCM: ncm})
	require.NoError(t, err)
	return *m
}

// purchase records a raw PEBD batch from the supplier.
func (f *fixture) purchase(t *testing.T, weight, price string) ledger.Batch {
	t.Helper()
	p := ledger.PurchaseParams{
		PartnerID:    f.supplier.ID,
		MaterialCode: "010",
		WeightKg:     d(weight),
	}
	if price != "" {
		p.PricePerKg = nd(price)
	}
	b, err := f.engine.RecordPurchase(f.ctx, p)
	require.NoError(t, err)
	return *b
}

func (f *fixture) transition(t *testing.T, id string, to ledger.Status, tc ledger.TransitionContext) *ledger.TransitionResult {
	t.Helper()
	res, err := f.engine.TransitionBatch(f.ctx, id, to, tc)
	require.NoError(t, err)
	return res
}

// finished drives a fresh purchase to finished at the given final weight.
func (f *fixture) finished(t *testing.T, weight, final string) ledger.Batch {
	t.Helper()
	b := f.purchase(t, weight, "2.50")
	f.transition(t, b.ID, ledger.StatusProcessing, ledger.TransitionContext{})
	res := f.transition(t, b.ID, ledger.StatusFinished, ledger.TransitionContext{WeightKg: nd(final)})
	return res.Batch
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(s))
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func entriesOf(entries []ledger.FinancialEntry, op string) []ledger.FinancialEntry {
	var out []ledger.FinancialEntry
	for _, e := range entries {
		if e.OperationType == op {
			out = append(out, e)
		}
	}
	return out
}

/*
Package factory provides JSON to engine scenario conversion.

PURPOSE:
  Converts JSON scenario definitions into a sequence of engine commands:
  reference data first, then orders, then purchases with their lifecycle
  steps. This lets demo data, fixtures and training datasets live as plain
  JSON instead of Go code.

JSON SCHEMA:
  {
    "id": "full-cycle",
    "name": "Full cycle",
    "partners":  [{"code": "012", "name": "Fornecedor", "roles": ["supplier"]}],
    "materials": [{"code": "010", "name": "PEBD", "ncm": "3915.10.00"}],
    "orders": [
      {"ref": "o1", "customer": "045", "seller": "088", "commission": 150,
       "items": [{"description": "PEBD granulado", "quantity": 1000, "unit_price": 3.2}]}
    ],
    "purchases": [
      {"ref": "b1", "partner": "012", "material": "010", "weight_kg": 2000,
       "price_per_kg": 2.1, "freight": 350, "days_ago": 20,
       "steps": [
         {"status": "processing"},
         {"status": "finished", "weight_kg": 1880},
         {"status": "extruding", "weight_kg": 800, "partner": "077", "as": "b1-ext"},
         {"status": "extruded", "batch": "b1-ext", "weight_kg": 770},
         {"status": "sold", "weight_kg": 1000, "partner": "045", "price_per_kg": 3.2,
          "order": "o1", "order_item": 0}
       ]}
    ]
  }

REFERENCES:
  Partners and materials are referenced by code. A step acts on the batch
  of its purchase unless "batch" names the "as" ref of an earlier step;
  "as" names the batch a step produced (the child on a split).

USAGE:
  f := factory.NewScenarioFactory()
  sc, err := f.Parse(factory.FullCycleJSON)
  res, err := f.Apply(ctx, engine, sc)

SEE ALSO:
  - presets.go: built-in scenarios
  - api/scenarios.go: loads presets over HTTP
*/
package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/green/recycling-ledger/ledger"
	"github.com/shopspring/decimal"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// Scenario is the JSON representation of a dataset.
type Scenario struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Partners    []PartnerJSON  `json:"partners"`
	Materials   []MaterialJSON `json:"materials"`
	Orders      []OrderJSON    `json:"orders,omitempty"`
	Purchases   []PurchaseJSON `json:"purchases,omitempty"`
}

type PartnerJSON struct {
	Code  string   `json:"code"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	Email string   `json:"email,omitempty"`
}

type MaterialJSON struct {
	Code string `json:"code"`
	Name string `json:"name"`
	NCM  string `json:"ncm,omitempty"`
}

type OrderJSON struct {
	Ref         string          `json:"ref"`
	OrderNumber string          `json:"order_number,omitempty"`
	Customer    string          `json:"customer"`
	Seller      string          `json:"seller,omitempty"`
	Commission  decimal.Decimal `json:"commission"`
	IsFOB       bool            `json:"is_fob,omitempty"`
	Items       []OrderItemJSON `json:"items"`
}

type OrderItemJSON struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type PurchaseJSON struct {
	Ref        string              `json:"ref"`
	Partner    string              `json:"partner"`
	Material   string              `json:"material"`
	WeightKg   decimal.Decimal     `json:"weight_kg"`
	PricePerKg decimal.NullDecimal `json:"price_per_kg"`
	Freight    decimal.Decimal     `json:"freight"`
	DaysAgo    int                 `json:"days_ago,omitempty"` // 0: today
	Steps      []StepJSON          `json:"steps,omitempty"`
}

type StepJSON struct {
	Status     string              `json:"status"`
	Batch      string              `json:"batch,omitempty"` // empty: the purchase's batch
	As         string              `json:"as,omitempty"`
	WeightKg   decimal.NullDecimal `json:"weight_kg"`
	Partner    string              `json:"partner,omitempty"`
	PricePerKg decimal.NullDecimal `json:"price_per_kg"`
	Material   string              `json:"material,omitempty"`
	Freight    decimal.Decimal     `json:"freight"`
	Order      string              `json:"order,omitempty"`
	OrderItem  int                 `json:"order_item,omitempty"`
	Finalize   bool                `json:"finalize_order,omitempty"`
}

// =============================================================================
// SCENARIO FACTORY
// =============================================================================

// ScenarioFactory parses and applies scenarios.
type ScenarioFactory struct {
	now func() time.Time
}

func NewScenarioFactory() *ScenarioFactory {
	return &ScenarioFactory{now: time.Now}
}

// WithClock sets the reference time "days_ago" counts back from.
func (f *ScenarioFactory) WithClock(now func() time.Time) *ScenarioFactory {
	f.now = now
	return f
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func (f *ScenarioFactory) Parse(raw string) (*Scenario, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario JSON: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", sc.ID, err)
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if sc.ID == "" {
		return fmt.Errorf("id is required")
	}
	for _, p := range sc.Partners {
		for _, r := range p.Roles {
			if !ledger.Role(r).Valid() {
				return fmt.Errorf("partner %s: unknown role %q", p.Code, r)
			}
		}
	}

	orders := make(map[string]bool, len(sc.Orders))
	for _, o := range sc.Orders {
		if o.Ref == "" || orders[o.Ref] {
			return fmt.Errorf("order ref %q is missing or duplicated", o.Ref)
		}
		orders[o.Ref] = true
	}

	refs := make(map[string]bool)
	for _, p := range sc.Purchases {
		if p.Ref == "" || refs[p.Ref] {
			return fmt.Errorf("purchase ref %q is missing or duplicated", p.Ref)
		}
		refs[p.Ref] = true
		for i, st := range p.Steps {
			if !ledger.Status(st.Status).Valid() {
				return fmt.Errorf("purchase %s step %d: unknown status %q", p.Ref, i, st.Status)
			}
			if st.Batch != "" && !refs[st.Batch] {
				return fmt.Errorf("purchase %s step %d: batch ref %q is not defined earlier", p.Ref, i, st.Batch)
			}
			if st.Order != "" && !orders[st.Order] {
				return fmt.Errorf("purchase %s step %d: unknown order ref %q", p.Ref, i, st.Order)
			}
			if st.As != "" {
				if refs[st.As] {
					return fmt.Errorf("purchase %s step %d: ref %q is already defined", p.Ref, i, st.As)
				}
				refs[st.As] = true
			}
		}
	}
	return nil
}

// Result maps scenario refs to the ids the engine assigned.
type Result struct {
	Partners  map[string]string `json:"partners"` // code -> id
	Materials map[string]string `json:"materials"`
	Orders    map[string]string `json:"orders"`  // ref -> id
	Batches   map[string]string `json:"batches"` // ref -> id
}

// Apply issues the scenario as engine commands. It stops at the first
// rejected command; commands already issued stay committed.
func (f *ScenarioFactory) Apply(ctx context.Context, e *ledger.Engine, sc *Scenario) (*Result, error) {
	res := &Result{
		Partners:  make(map[string]string),
		Materials: make(map[string]string),
		Orders:    make(map[string]string),
		Batches:   make(map[string]string),
	}

	for _, p := range sc.Partners {
		roles := make([]ledger.Role, len(p.Roles))
		for i, r := range p.Roles {
			roles[i] = ledger.Role(r)
		}
		created, err := e.CreatePartner(ctx, ledger.PartnerParams{
			Code:  p.Code,
			Name:  p.Name,
			Roles: ledger.NewRoleSet(roles...),
			Email: p.Email,
		})
		if err != nil {
			return nil, fmt.Errorf("partner %s: %w", p.Code, err)
		}
		res.Partners[p.Code] = created.ID
	}

	for _, m := range sc.Materials {
		created, err := e.CreateMaterial(ctx, ledger.MaterialParams{Code: m.Code, Name: m.Name, NCM: m.NCM})
		if err != nil {
			return nil, fmt.Errorf("material %s: %w", m.Code, err)
		}
		res.Materials[m.Code] = created.ID
	}

	for _, o := range sc.Orders {
		if err := f.applyOrder(ctx, e, res, o); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.Ref, err)
		}
	}

	for _, p := range sc.Purchases {
		if err := f.applyPurchase(ctx, e, res, p); err != nil {
			return nil, fmt.Errorf("purchase %s: %w", p.Ref, err)
		}
	}
	return res, nil
}

func (f *ScenarioFactory) applyOrder(ctx context.Context, e *ledger.Engine, res *Result, o OrderJSON) error {
	customer, err := partnerID(e, o.Customer)
	if err != nil {
		return err
	}
	var seller string
	if o.Seller != "" {
		if seller, err = partnerID(e, o.Seller); err != nil {
			return err
		}
	}

	items := make([]ledger.OrderItemParams, len(o.Items))
	for i, it := range o.Items {
		items[i] = ledger.OrderItemParams{Description: it.Description, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	created, err := e.CreateOrder(ctx, ledger.OrderParams{
		OrderNumber:      o.OrderNumber,
		CustomerID:       customer,
		SellerID:         seller,
		CommissionAmount: o.Commission,
		IsFOB:            o.IsFOB,
		Items:            items,
	})
	if err != nil {
		return err
	}
	res.Orders[o.Ref] = created.ID
	return nil
}

func (f *ScenarioFactory) applyPurchase(ctx context.Context, e *ledger.Engine, res *Result, p PurchaseJSON) error {
	supplier, err := partnerID(e, p.Partner)
	if err != nil {
		return err
	}

	var date time.Time
	if p.DaysAgo > 0 {
		date = f.now().AddDate(0, 0, -p.DaysAgo)
	}
	b, err := e.RecordPurchase(ctx, ledger.PurchaseParams{
		PartnerID:    supplier,
		MaterialCode: p.Material,
		WeightKg:     p.WeightKg,
		PricePerKg:   p.PricePerKg,
		Date:         date,
		Shipping:     freight(p.Freight),
	})
	if err != nil {
		return err
	}
	res.Batches[p.Ref] = b.ID

	for i, st := range p.Steps {
		if err := f.applyStep(ctx, e, res, p.Ref, st, date); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, st.Status, err)
		}
	}
	return nil
}

func (f *ScenarioFactory) applyStep(ctx context.Context, e *ledger.Engine, res *Result, ref string, st StepJSON, date time.Time) error {
	if st.Batch != "" {
		ref = st.Batch
	}

	tc := ledger.TransitionContext{
		WeightKg:      st.WeightKg,
		PricePerKg:    st.PricePerKg,
		MaterialCode:  st.Material,
		Date:          date,
		Shipping:      freight(st.Freight),
		FinalizeOrder: st.Finalize,
	}
	if st.Partner != "" {
		id, err := partnerID(e, st.Partner)
		if err != nil {
			return err
		}
		tc.PartnerID = id
	}
	if st.Order != "" {
		o, err := e.Order(res.Orders[st.Order])
		if err != nil {
			return err
		}
		if st.OrderItem < 0 || st.OrderItem >= len(o.Items) {
			return ledger.ErrOrderItemNotFound
		}
		tc.OrderID, tc.OrderItemID = o.ID, o.Items[st.OrderItem].ID
	}

	out, err := e.TransitionBatch(ctx, res.Batches[ref], ledger.Status(st.Status), tc)
	if err != nil {
		return err
	}
	if st.As != "" {
		res.Batches[st.As] = out.Batch.ID
	}
	return nil
}

func partnerID(e *ledger.Engine, code string) (string, error) {
	p, err := e.PartnerByCode(code)
	if err != nil {
		return "", fmt.Errorf("partner %s: %w", code, err)
	}
	return p.ID, nil
}

// freight turns a cost into a generic-carrier shipment, or nil for none.
func freight(cost decimal.Decimal) *ledger.Shipping {
	if !cost.IsPositive() {
		return nil
	}
	return &ledger.Shipping{Cost: cost}
}

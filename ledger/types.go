/*
Package ledger provides the batch lifecycle and financial-entry derivation engine.

PURPOSE:
  Tracks recycled-material batches from purchase through processing,
  external extrusion and sale. Every lifecycle transition updates the batch
  ledger and, as a side effect, appends weight records to the transaction
  log, derives payables/receivables into the financial ledger, and advances
  linked sales orders.

KEY CONCEPTS IN THIS FILE (types.go):
  - Partner / Material: reference data identified by a 3-digit code
  - Batch: a tracked quantity of one material moving through statuses
  - Transaction: immutable weight record derived from a transition
  - FinancialEntry: payable/receivable derived from purchases, sales, orders
  - Order: sales order fulfilled incrementally by sold batches

DESIGN PRINCIPLES:
  1. Stable identity: Batch.ID never changes; Batch.Code() is derived
  2. Precision: weights and money use decimal.Decimal
  3. Atomicity: a command commits every derived record or none of them
  4. Append-only weight history: transactions are never edited

USAGE:
  engine := ledger.New(ledger.WithStore(store.NewMemory()))
  batch, err := engine.RecordPurchase(ctx, ledger.PurchaseParams{
      PartnerID:    supplier.ID,
      MaterialCode: "010",
      WeightKg:     decimal.NewFromInt(1000),
      PricePerKg:   decimal.NewNullDecimal(decimal.RequireFromString("2.5")),
  })

SEE ALSO:
  - engine.go: command entry points and the commit/rollback discipline
  - batch.go: state machine and display keys
  - financial.go: derivation rules for payables/receivables
  - orders.go: order book
*/
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REFERENCE DATA
// =============================================================================

// Role is a capability a partner may hold. A partner can hold several.
type Role string

const (
	RoleSupplier        Role = "supplier"
	RoleCustomer        Role = "customer"
	RoleServiceProvider Role = "service_provider"
	RoleSeller          Role = "seller"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSupplier, RoleCustomer, RoleServiceProvider, RoleSeller:
		return true
	}
	return false
}

// RoleSet is a duplicate-free set of roles kept in insertion order.
type RoleSet []Role

func NewRoleSet(roles ...Role) RoleSet {
	var set RoleSet
	for _, r := range roles {
		if !set.Has(r) {
			set = append(set, r)
		}
	}
	return set
}

func (s RoleSet) Has(r Role) bool {
	for _, have := range s {
		if have == r {
			return true
		}
	}
	return false
}

func (s RoleSet) String() string {
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// ParseRoleSet parses a comma separated role list as produced by String.
func ParseRoleSet(raw string) (RoleSet, error) {
	var roles []Role
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r := Role(part)
		if !r.Valid() {
			return nil, fmt.Errorf("unknown role %q", part)
		}
		roles = append(roles, r)
	}
	return NewRoleSet(roles...), nil
}

type Partner struct {
	ID            string  `json:"id"`
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Roles         RoleSet `json:"roles"`
	Document      string  `json:"document,omitempty"`
	Email         string  `json:"email,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	Address       string  `json:"address,omitempty"`
	ContactPerson string  `json:"contact_person,omitempty"`
}

type Material struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	NCM  string `json:"ncm,omitempty"` // tax classification
}

// GenericCarrierID is the freight payee used when a shipment names no carrier partner.
const GenericCarrierID = "carrier"

// Shipping is freight metadata attached to a purchase, extrusion dispatch or sale.
type Shipping struct {
	CarrierID string          `json:"carrier_id,omitempty"`
	Cost      decimal.Decimal `json:"cost"`
	IsFOB     bool            `json:"is_fob"` // freight paid or hauled by the counterparty
	Plate     string          `json:"plate,omitempty"`
	Notes     string          `json:"notes,omitempty"`
}

// Chargeable reports whether the shipment produces a freight payable.
func (s *Shipping) Chargeable() bool {
	return s != nil && !s.IsFOB && s.Cost.IsPositive()
}

// Payee returns the partner id the freight is owed to.
func (s *Shipping) Payee() string {
	if s.CarrierID != "" {
		return s.CarrierID
	}
	return GenericCarrierID
}

func (s *Shipping) clone() *Shipping {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// =============================================================================
// BATCH
// =============================================================================

type Status string

const (
	StatusRaw        Status = "raw"
	StatusProcessing Status = "processing"
	StatusFinished   Status = "finished"
	StatusSold       Status = "sold"
	StatusExtruding  Status = "extruding"
	StatusExtruded   Status = "extruded"
)

// Statuses lists every batch status in lifecycle order.
var Statuses = []Status{StatusRaw, StatusProcessing, StatusFinished, StatusExtruding, StatusExtruded, StatusSold}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Saleable reports whether a batch in this status may be sold.
func (s Status) Saleable() bool {
	return s == StatusFinished || s == StatusExtruded
}

// Batch is a tracked quantity of one material.
//
// ID is stable for the life of the batch. The human display key is derived
// by Code() from PartnerCode, Sequence, MaterialCode and SplitPath, so
// reclassifying the material changes the display key without touching
// anything that references the batch.
type Batch struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`

	PartnerID   string   `json:"partner_id"`
	PartnerCode string   `json:"partner_code"`
	Sequence    int      `json:"sequence"`
	SplitPath   []string `json:"split_path,omitempty"`
	Splits      int      `json:"splits"` // children split off this batch so far

	MaterialCode      string `json:"material_code"`
	ServiceProviderID string `json:"service_provider_id,omitempty"`
	CustomerID        string `json:"customer_id,omitempty"`

	WeightKg decimal.Decimal `json:"weight_kg"`
	Status   Status          `json:"status"`

	PurchasePricePerKg decimal.NullDecimal `json:"purchase_price_per_kg"`
	SalePricePerKg     decimal.NullDecimal `json:"sale_price_per_kg"`
	Shipping           *Shipping           `json:"shipping,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Code returns the display key, e.g. "012/001/010" or "012/001/010/E-01".
func (b Batch) Code() string {
	key := fmt.Sprintf("%s/%03d/%s", b.PartnerCode, b.Sequence, b.MaterialCode)
	if len(b.SplitPath) == 0 {
		return key
	}
	return key + "/" + strings.Join(b.SplitPath, "/")
}

func (b Batch) clone() Batch {
	c := b
	if b.SplitPath != nil {
		c.SplitPath = append([]string(nil), b.SplitPath...)
	}
	c.Shipping = b.Shipping.clone()
	return c
}

// =============================================================================
// TRANSACTION - Append-only weight record
// =============================================================================

type TransactionType string

const (
	TxPurchase   TransactionType = "purchase"
	TxProduction TransactionType = "production"
	TxSale       TransactionType = "sale"
	TxExtruding  TransactionType = "extruding"
	TxExtruded   TransactionType = "extruded"
	TxLoss       TransactionType = "loss"
	TxGain       TransactionType = "gain" // weighing came back heavier than it left
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxPurchase, TxProduction, TxSale, TxExtruding, TxExtruded, TxLoss, TxGain:
		return true
	}
	return false
}

// Transaction records one weight-affecting event. Never mutated or deleted.
type Transaction struct {
	ID               string              `json:"id"`
	BatchID          string              `json:"batch_id"`
	BatchCode        string              `json:"batch_code"` // display key when recorded
	Type             TransactionType     `json:"type"`
	WeightKg         decimal.Decimal     `json:"weight_kg"`
	OriginalWeightKg decimal.NullDecimal `json:"original_weight_kg"`
	Date             time.Time           `json:"date"`
	Description      string              `json:"description"`
}

// =============================================================================
// FINANCIAL ENTRY
// =============================================================================

type EntryType string

const (
	EntryPayable    EntryType = "payable"
	EntryReceivable EntryType = "receivable"
)

type EntryStatus string

const (
	EntryPending EntryStatus = "pending"
	EntryPaid    EntryStatus = "paid"
)

// Operation types written by the derivation rules.
const (
	OpPurchase   = "Purchase of raw material"
	OpFreight    = "Freight"
	OpSale       = "Sale of material"
	OpCommission = "Seller commission"
)

type FinancialEntry struct {
	ID            string          `json:"id"`
	Type          EntryType       `json:"type"`
	OperationType string          `json:"operation_type"`
	PartnerID     string          `json:"partner_id"`
	BatchID       string          `json:"batch_id,omitempty"`
	BatchCode     string          `json:"batch_code,omitempty"`
	OrderNumber   string          `json:"order_number,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	DueDate       time.Time       `json:"due_date"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty"`
	Status        EntryStatus     `json:"status"`
	Description   string          `json:"description"`
}

func (f FinancialEntry) clone() FinancialEntry {
	c := f
	if f.PaymentDate != nil {
		pd := *f.PaymentDate
		c.PaymentDate = &pd
	}
	return c
}

// =============================================================================
// ORDER
// =============================================================================

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

type OrderItem struct {
	ID                string          `json:"id"`
	Description       string          `json:"description"`
	Quantity          decimal.Decimal `json:"quantity"`
	DeliveredQuantity decimal.Decimal `json:"delivered_quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Total             decimal.Decimal `json:"total"`
}

// Delivered reports whether the item has been fully fulfilled.
func (i OrderItem) Delivered() bool {
	return i.DeliveredQuantity.GreaterThanOrEqual(i.Quantity)
}

// Outstanding returns what is still to be delivered, never negative.
func (i OrderItem) Outstanding() decimal.Decimal {
	rest := i.Quantity.Sub(i.DeliveredQuantity)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

type Order struct {
	ID               string          `json:"id"`
	OrderNumber      string          `json:"order_number"`
	Date             time.Time       `json:"date"`
	CustomerID       string          `json:"customer_id"`
	SellerID         string          `json:"seller_id,omitempty"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	IsFOB            bool            `json:"is_fob"`
	Items            []OrderItem     `json:"items"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Status           OrderStatus     `json:"status"`
	Notes            string          `json:"notes,omitempty"`
}

func (o Order) clone() Order {
	c := o
	c.Items = append([]OrderItem(nil), o.Items...)
	return c
}

func (o Order) itemIndex(id string) int {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// recomputeTotal sums item totals into TotalAmount.
func (o *Order) recomputeTotal() {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Total)
	}
	o.TotalAmount = total
}

// recomputeStatus advances the status from item deliveries. Cancelled orders
// and orders with nothing delivered keep their status.
func (o *Order) recomputeStatus() {
	if o.Status == OrderCancelled || len(o.Items) == 0 {
		return
	}
	complete, started := true, false
	for _, it := range o.Items {
		if !it.Delivered() {
			complete = false
		}
		if it.DeliveredQuantity.IsPositive() {
			started = true
		}
	}
	switch {
	case complete && started:
		o.Status = OrderDelivered
	case started && o.Status == OrderPending:
		o.Status = OrderConfirmed
	}
}

// money rounds an amount to cents.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

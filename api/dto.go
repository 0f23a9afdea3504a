/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request types carry
  `validate` tags checked by go-playground/validator before the engine is
  called; the engine re-checks every domain rule on its own.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

AMOUNTS AND DATES:
  Weights and amounts are decimals. Requests accept JSON numbers or
  strings; responses always use strings ("1250.5") to avoid float rounding.
  Dates accept "2006-01-02" or RFC 3339.

SEE ALSO:
  - handlers.go: Uses these types
  - validate.go: validator setup and field error mapping
*/
package api

import (
	"github.com/green/recycling-ledger/ledger"
	"github.com/shopspring/decimal"
)

// =============================================================================
// REFERENCE DATA
// =============================================================================

type PartnerRequest struct {
	Code          string   `json:"code" validate:"required,len=3,numeric"`
	Name          string   `json:"name" validate:"required,max=200"`
	Roles         []string `json:"roles" validate:"required,min=1,dive,oneof=supplier customer service_provider seller"`
	Document      string   `json:"document" validate:"omitempty,max=32"`
	Email         string   `json:"email" validate:"omitempty,email"`
	Phone         string   `json:"phone" validate:"omitempty,max=32"`
	Address       string   `json:"address"`
	ContactPerson string   `json:"contact_person"`
}

func (r PartnerRequest) params() ledger.PartnerParams {
	roles := make([]ledger.Role, len(r.Roles))
	for i, role := range r.Roles {
		roles[i] = ledger.Role(role)
	}
	return ledger.PartnerParams{
		Code:          r.Code,
		Name:          r.Name,
		Roles:         ledger.NewRoleSet(roles...),
		Document:      r.Document,
		Email:         r.Email,
		Phone:         r.Phone,
		Address:       r.Address,
		ContactPerson: r.ContactPerson,
	}
}

type MaterialRequest struct {
	Code string `json:"code" validate:"required,len=3,numeric"`
	Name string `json:"name" validate:"required,max=200"`
	NCM  string `json:"ncm" validate:"omitempty,max=16"`
}

func (r MaterialRequest) params() ledger.MaterialParams {
	return ledger.MaterialParams{Code: r.Code, Name: r.Name, NCM: r.NCM}
}

// =============================================================================
// BATCHES
// =============================================================================

type ShippingRequest struct {
	CarrierID string          `json:"carrier_id"`
	Cost      decimal.Decimal `json:"cost"`
	IsFOB     bool            `json:"is_fob"`
	Plate     string          `json:"plate" validate:"omitempty,max=16"`
	Notes     string          `json:"notes"`
}

func (r *ShippingRequest) shipping() *ledger.Shipping {
	if r == nil {
		return nil
	}
	return &ledger.Shipping{
		CarrierID: r.CarrierID,
		Cost:      r.Cost,
		IsFOB:     r.IsFOB,
		Plate:     r.Plate,
		Notes:     r.Notes,
	}
}

type PurchaseRequest struct {
	PartnerID    string              `json:"partner_id" validate:"required"`
	MaterialCode string              `json:"material_code" validate:"required,len=3,numeric"`
	WeightKg     decimal.Decimal     `json:"weight_kg"`
	PricePerKg   decimal.NullDecimal `json:"price_per_kg"`
	Date         string              `json:"date"`
	DueDate      string              `json:"due_date"`
	Shipping     *ShippingRequest    `json:"shipping"`
}

type TransitionRequest struct {
	Status        string              `json:"status" validate:"required,oneof=raw processing finished extruding extruded sold"`
	WeightKg      decimal.NullDecimal `json:"weight_kg"`
	PartnerID     string              `json:"partner_id"`
	PricePerKg    decimal.NullDecimal `json:"price_per_kg"`
	MaterialCode  string              `json:"material_code" validate:"omitempty,len=3,numeric"`
	Date          string              `json:"date"`
	DueDate       string              `json:"due_date"`
	Shipping      *ShippingRequest    `json:"shipping"`
	OrderID       string              `json:"order_id" validate:"required_with=OrderItemID"`
	OrderItemID   string              `json:"order_item_id" validate:"required_with=OrderID"`
	FinalizeOrder bool                `json:"finalize_order"`
}

// BatchDTO is a batch with its derived display key and allowed next statuses.
type BatchDTO struct {
	ledger.Batch
	Code         string          `json:"code"`
	NextStatuses []ledger.Status `json:"next_statuses"`
}

func toBatchDTO(b ledger.Batch) BatchDTO {
	next := ledger.NextStatuses(b.Status)
	if next == nil {
		next = []ledger.Status{}
	}
	return BatchDTO{Batch: b, Code: b.Code(), NextStatuses: next}
}

type TransitionResponse struct {
	Batch            BatchDTO                `json:"batch"`
	Parent           *BatchDTO               `json:"parent,omitempty"`
	Split            bool                    `json:"split"`
	Transactions     []ledger.Transaction    `json:"transactions"`
	FinancialEntries []ledger.FinancialEntry `json:"financial_entries"`
	Order            *ledger.Order           `json:"order,omitempty"`
}

// =============================================================================
// FINANCIAL ENTRIES
// =============================================================================

type EntryStatusRequest struct {
	Status      string `json:"status" validate:"required,oneof=pending paid"`
	PaymentDate string `json:"payment_date"`
}

type EntryUpdateRequest struct {
	DueDate     *string `json:"due_date"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// =============================================================================
// ORDERS
// =============================================================================

type OrderItemRequest struct {
	ID          string          `json:"id"`
	Description string          `json:"description" validate:"required,max=200"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func itemParams(items []OrderItemRequest) []ledger.OrderItemParams {
	out := make([]ledger.OrderItemParams, len(items))
	for i, it := range items {
		out[i] = ledger.OrderItemParams{
			ID:          it.ID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
	}
	return out
}

type OrderRequest struct {
	OrderNumber       string             `json:"order_number" validate:"omitempty,max=32"`
	Date              string             `json:"date"`
	CustomerID        string             `json:"customer_id" validate:"required"`
	SellerID          string             `json:"seller_id"`
	CommissionAmount  decimal.Decimal    `json:"commission_amount"`
	CommissionDueDate string             `json:"commission_due_date"`
	IsFOB             bool               `json:"is_fob"`
	Items             []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	Status            string             `json:"status" validate:"omitempty,oneof=pending confirmed delivered cancelled"`
	Notes             string             `json:"notes"`
}

type OrderUpdateRequest struct {
	Date       *string             `json:"date"`
	CustomerID *string             `json:"customer_id"`
	SellerID   *string             `json:"seller_id"`
	IsFOB      *bool               `json:"is_fob"`
	Items      *[]OrderItemRequest `json:"items" validate:"omitempty,min=1,dive"`
	Status     *string             `json:"status" validate:"omitempty,oneof=pending confirmed delivered cancelled"`
	Notes      *string             `json:"notes"`
}

// =============================================================================
// MISC
// =============================================================================

// ErrorResponse is the error envelope of every failed request.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type ImportResponse struct {
	Partners         int `json:"partners"`
	Materials        int `json:"materials"`
	Batches          int `json:"batches"`
	Transactions     int `json:"transactions"`
	FinancialEntries int `json:"financial_entries"`
	Orders           int `json:"orders"`
}

type FinancialReportDTO struct {
	ledger.FinancialTotals
	Balance decimal.Decimal `json:"balance"`
}

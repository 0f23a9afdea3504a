package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ORDER BOOK
// =============================================================================
// Orders are fulfilled incrementally by sold batches (see TransitionBatch).
// Cancelling or deleting an order never touches batches, transactions or
// financial entries already created.

type OrderItemParams struct {
	ID          string // keep empty for new items
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

type OrderParams struct {
	OrderNumber      string // empty: next free number
	Date             time.Time
	CustomerID       string
	SellerID         string
	CommissionAmount decimal.Decimal
	CommissionDue    time.Time // zero: order date
	IsFOB            bool
	Items            []OrderItemParams
	Status           OrderStatus // empty: pending
	Notes            string
}

// OrderPatch edits an order. Nil fields are kept.
type OrderPatch struct {
	Date       *time.Time
	CustomerID *string
	SellerID   *string
	IsFOB      *bool
	Items      *[]OrderItemParams
	Status     *OrderStatus
	Notes      *string
}

func (e *Engine) Orders() []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Order, len(e.state.Orders))
	for i, o := range e.state.Orders {
		out[i] = o.clone()
	}
	return out
}

func (e *Engine) Order(id string) (Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i := e.state.orderIndex(id)
	if i < 0 {
		return Order{}, ErrOrderNotFound
	}
	return e.state.Orders[i].clone(), nil
}

// CreateOrder registers a sales order and, when it names a seller with a
// positive commission, the seller's commission payable.
func (e *Engine) CreateOrder(ctx context.Context, p OrderParams) (*Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var created Order
	err := e.commit(ctx, "order_create", func(s *State) error {
		if _, err := requirePartner(s, p.CustomerID, RoleCustomer); err != nil {
			return err
		}
		var seller *Partner
		if p.SellerID != "" {
			sp, err := requirePartner(s, p.SellerID, RoleSeller)
			if err != nil {
				return err
			}
			seller = sp
		}
		if p.CommissionAmount.IsNegative() {
			return invalid("commission_amount", "must not be negative")
		}
		status := p.Status
		if status == "" {
			status = OrderPending
		}
		if !status.Valid() {
			return invalid("status", "unknown status %q", status)
		}

		number := p.OrderNumber
		if number == "" {
			number = nextOrderNumber(s)
		} else if orderNumberTaken(s, number, "") {
			return fmt.Errorf("order %s: %w", number, ErrDuplicateCode)
		}

		items, err := e.buildItems(p.Items, nil)
		if err != nil {
			return err
		}

		o := Order{
			ID:               e.newID(),
			OrderNumber:      number,
			Date:             orDefault(p.Date, e.now()),
			CustomerID:       p.CustomerID,
			SellerID:         p.SellerID,
			CommissionAmount: p.CommissionAmount,
			IsFOB:            p.IsFOB,
			Items:            items,
			Status:           status,
			Notes:            p.Notes,
		}
		o.recomputeTotal()
		s.Orders = append(s.Orders, o)

		if seller != nil && o.CommissionAmount.IsPositive() {
			s.FinancialEntries = append(s.FinancialEntries,
				e.commissionEntry(o, *seller, orDefault(p.CommissionDue, o.Date)))
		}

		created = o.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateOrder edits an order. Replacing the items recomputes the total and
// keeps the delivered quantity of items whose id is kept. Commission edits
// are not offered: the derived payable is corrected in the financial ledger.
func (e *Engine) UpdateOrder(ctx context.Context, id string, patch OrderPatch) (*Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var updated Order
	err := e.commit(ctx, "order_update", func(s *State) error {
		i := s.orderIndex(id)
		if i < 0 {
			return ErrOrderNotFound
		}
		o := s.Orders[i].clone()

		if patch.Date != nil && !patch.Date.IsZero() {
			o.Date = *patch.Date
		}
		if patch.CustomerID != nil {
			if _, err := requirePartner(s, *patch.CustomerID, RoleCustomer); err != nil {
				return err
			}
			o.CustomerID = *patch.CustomerID
		}
		if patch.SellerID != nil {
			if *patch.SellerID != "" {
				if _, err := requirePartner(s, *patch.SellerID, RoleSeller); err != nil {
					return err
				}
			}
			o.SellerID = *patch.SellerID
		}
		if patch.IsFOB != nil {
			o.IsFOB = *patch.IsFOB
		}
		if patch.Notes != nil {
			o.Notes = *patch.Notes
		}
		if patch.Items != nil {
			items, err := e.buildItems(*patch.Items, o.Items)
			if err != nil {
				return err
			}
			o.Items = items
			o.recomputeTotal()
		}

		if patch.Status != nil {
			if !patch.Status.Valid() {
				return invalid("status", "unknown status %q", *patch.Status)
			}
			o.Status = *patch.Status
		} else if patch.Items != nil {
			o.recomputeStatus()
		}

		s.Orders[i] = o
		updated = o.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// CancelOrder marks an order cancelled. Nothing derived from it is undone.
func (e *Engine) CancelOrder(ctx context.Context, id string) (*Order, error) {
	status := OrderCancelled
	return e.UpdateOrder(ctx, id, OrderPatch{Status: &status})
}

func (e *Engine) DeleteOrder(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.commit(ctx, "order_delete", func(s *State) error {
		i := s.orderIndex(id)
		if i < 0 {
			return ErrOrderNotFound
		}
		s.Orders = append(s.Orders[:i], s.Orders[i+1:]...)
		return nil
	})
}

// buildItems validates item params. Items matching an id in previous keep
// their delivered quantity.
func (e *Engine) buildItems(params []OrderItemParams, previous []OrderItem) ([]OrderItem, error) {
	if len(params) == 0 {
		return nil, invalid("items", "at least one item is required")
	}
	delivered := make(map[string]decimal.Decimal, len(previous))
	for _, it := range previous {
		delivered[it.ID] = it.DeliveredQuantity
	}

	items := make([]OrderItem, 0, len(params))
	ids := make(map[string]bool, len(params))
	for n, p := range params {
		field := fmt.Sprintf("items[%d]", n)
		if p.ID != "" {
			if ids[p.ID] {
				return nil, invalid(field+".id", "duplicate")
			}
			ids[p.ID] = true
		}
		if p.Description == "" {
			return nil, invalid(field+".description", "required")
		}
		if !p.Quantity.IsPositive() {
			return nil, invalid(field+".quantity", "must be positive")
		}
		if p.UnitPrice.IsNegative() {
			return nil, invalid(field+".unit_price", "must not be negative")
		}

		item := OrderItem{
			ID:                p.ID,
			Description:       p.Description,
			Quantity:          p.Quantity,
			DeliveredQuantity: decimal.Zero,
			UnitPrice:         p.UnitPrice,
			Total:             money(p.Quantity.Mul(p.UnitPrice)),
		}
		if d, ok := delivered[p.ID]; ok && p.ID != "" {
			item.DeliveredQuantity = d
		} else {
			item.ID = e.newID()
		}
		items = append(items, item)
	}
	return items, nil
}

func orderNumberTaken(s *State, number, exceptID string) bool {
	for _, o := range s.Orders {
		if o.OrderNumber == number && o.ID != exceptID {
			return true
		}
	}
	return false
}

// nextOrderNumber returns one past the highest numeric order number, zero-padded.
func nextOrderNumber(s *State) string {
	highest := 0
	for _, o := range s.Orders {
		if n, err := strconv.Atoi(o.OrderNumber); err == nil && n > highest {
			highest = n
		}
	}
	for {
		highest++
		candidate := fmt.Sprintf("%04d", highest)
		if !orderNumberTaken(s, candidate, "") {
			return candidate
		}
	}
}

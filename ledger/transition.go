package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// TRANSITION CONTEXT / RESULT
// =============================================================================

// TransitionContext carries the caller-supplied details of a transition.
// Which fields are required depends on the edge (see batch.go).
type TransitionContext struct {
	WeightKg     decimal.NullDecimal
	PartnerID    string              // service provider (extrude) or customer (sell)
	PricePerKg   decimal.NullDecimal // sell
	MaterialCode string              // optional reclassification on finalize/return
	Date         time.Time
	DueDate      time.Time
	Shipping     *Shipping

	// Sale fulfilment linkage.
	OrderID       string
	OrderItemID   string
	FinalizeOrder bool
}

// TransitionResult reports everything a transition wrote.
type TransitionResult struct {
	// Batch is the batch now in the target status: the child on a split.
	Batch Batch
	// Parent is the remainder left in the original status when the batch was split.
	Parent *Batch

	Transactions     []Transaction
	FinancialEntries []FinancialEntry
	Order            *Order
}

// Split reports whether the transition created a sub-batch.
func (r *TransitionResult) Split() bool {
	return r.Parent != nil
}

// transitionPlan is the fully validated intent of a transition. Building it
// reads the state only; applying it is the only step that writes.
type transitionPlan struct {
	batchIdx int
	kind     edgeKind
	to       Status
	weight   decimal.Decimal
	split    bool

	partner  *Partner
	material string
	price    decimal.NullDecimal
	date     time.Time
	due      time.Time
	shipping *Shipping

	orderIdx      int
	itemIdx       int
	finalizeOrder bool
}

// =============================================================================
// TRANSITION BATCH
// =============================================================================

// TransitionBatch moves a batch to the target status, splitting it on a
// partial dispatch or sale, and appends the derived transactions, financial
// entries and order progress. Either all of it commits or none of it does.
func (e *Engine) TransitionBatch(ctx context.Context, batchID string, to Status, tc TransitionContext) (*TransitionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result *TransitionResult
	err := e.commit(ctx, "transition", func(s *State) error {
		plan, err := e.planTransition(s, batchID, to, tc)
		if err != nil {
			return err
		}
		result = e.applyTransition(s, plan)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"batch":  result.Batch.Code(),
		"status": string(to),
		"split":  result.Split(),
	}).Info("batch transitioned")
	return result, nil
}

func (e *Engine) planTransition(s *State, batchID string, to Status, tc TransitionContext) (*transitionPlan, error) {
	idx := s.batchIndex(batchID)
	if idx < 0 {
		return nil, ErrBatchNotFound
	}
	b := s.Batches[idx]

	kind, err := lookupEdge(b, to)
	if err != nil {
		return nil, err
	}

	weight, err := resolveWeight(b, kind, tc.WeightKg)
	if err != nil {
		return nil, err
	}

	plan := &transitionPlan{
		batchIdx: idx,
		kind:     kind,
		to:       to,
		weight:   weight,
		split:    kind.splits() && weight.LessThan(b.WeightKg),
		orderIdx: -1,
		itemIdx:  -1,
	}

	switch kind {
	case edgeExtrudeSend:
		p, err := requirePartner(s, tc.PartnerID, RoleServiceProvider)
		if err != nil {
			return nil, err
		}
		plan.partner = p

	case edgeSell:
		p, err := requirePartner(s, tc.PartnerID, RoleCustomer)
		if err != nil {
			return nil, err
		}
		plan.partner = p
		if tc.PricePerKg.Valid && tc.PricePerKg.Decimal.IsNegative() {
			return nil, invalid("price_per_kg", "must not be negative")
		}
		plan.price = tc.PricePerKg
		if err := planOrderLink(s, plan, tc); err != nil {
			return nil, err
		}

	case edgeFinalize, edgeExtrudeReturn:
		if tc.MaterialCode != "" && tc.MaterialCode != b.MaterialCode {
			if s.materialByCode(tc.MaterialCode) < 0 {
				return nil, fmt.Errorf("material %q: %w", tc.MaterialCode, ErrMaterialNotFound)
			}
			plan.material = tc.MaterialCode
		}
	}

	if kind.splits() {
		if err := validateShipping(s, tc.Shipping); err != nil {
			return nil, err
		}
		plan.shipping = tc.Shipping.clone()
	}

	plan.date = orDefault(tc.Date, e.now())
	plan.due = orDefault(tc.DueDate, plan.date)
	return plan, nil
}

func requirePartner(s *State, id string, role Role) (*Partner, error) {
	if id == "" {
		return nil, invalid("partner_id", "required")
	}
	i := s.partnerIndex(id)
	if i < 0 {
		return nil, ErrPartnerNotFound
	}
	p := s.Partners[i]
	if !p.Roles.Has(role) {
		return nil, &RoleError{PartnerID: id, Role: role}
	}
	return &p, nil
}

func planOrderLink(s *State, plan *transitionPlan, tc TransitionContext) error {
	if tc.OrderID == "" && tc.OrderItemID == "" {
		return nil
	}
	if tc.OrderID == "" || tc.OrderItemID == "" {
		return invalid("order_item_id", "order and order item must be given together")
	}
	oi := s.orderIndex(tc.OrderID)
	if oi < 0 {
		return ErrOrderNotFound
	}
	if s.Orders[oi].Status == OrderCancelled {
		return fmt.Errorf("order %s: %w", s.Orders[oi].OrderNumber, ErrOrderClosed)
	}
	ii := s.Orders[oi].itemIndex(tc.OrderItemID)
	if ii < 0 {
		return ErrOrderItemNotFound
	}
	plan.orderIdx, plan.itemIdx, plan.finalizeOrder = oi, ii, tc.FinalizeOrder
	return nil
}

// applyTransition performs the validated plan. It cannot fail.
func (e *Engine) applyTransition(s *State, plan *transitionPlan) *TransitionResult {
	now := e.now()
	result := &TransitionResult{}

	parent := &s.Batches[plan.batchIdx]
	original := parent.WeightKg
	var target Batch

	if plan.split {
		parent.WeightKg = parent.WeightKg.Sub(plan.weight)
		parent.Splits++
		parent.UpdatedAt = now
		target = splitChild(*parent, e.newID(), plan.to, plan.weight)
		target.CreatedAt = now
		remainder := parent.clone()
		result.Parent = &remainder
	} else {
		parent.Status = plan.to
		parent.WeightKg = plan.weight
		target = parent.clone()
	}

	target.UpdatedAt = now
	if plan.material != "" {
		target.MaterialCode = plan.material
	}
	switch plan.kind {
	case edgeExtrudeSend:
		target.ServiceProviderID = plan.partner.ID
		target.Shipping = plan.shipping
	case edgeSell:
		target.CustomerID = plan.partner.ID
		target.SalePricePerKg = plan.price
		target.Shipping = plan.shipping
	}

	if plan.split {
		s.Batches = append(s.Batches, target)
	} else {
		s.Batches[plan.batchIdx] = target
	}
	result.Batch = target.clone()

	result.Transactions = e.transitionTransactions(plan, target, original, result.Parent)
	s.Transactions = append(s.Transactions, result.Transactions...)

	if plan.kind == edgeSell {
		result.FinancialEntries = e.saleEntries(s, target, plan)
		s.FinancialEntries = append(s.FinancialEntries, result.FinancialEntries...)

		if plan.orderIdx >= 0 {
			o := &s.Orders[plan.orderIdx]
			item := &o.Items[plan.itemIdx]
			item.DeliveredQuantity = item.DeliveredQuantity.Add(plan.weight)
			if plan.finalizeOrder {
				o.Status = OrderDelivered
			} else {
				o.recomputeStatus()
			}
			updated := o.clone()
			result.Order = &updated
		}
	}
	return result
}

// transitionTransactions builds the primary record and, for reweighing
// edges, the loss or gain record. Primary always comes first.
func (e *Engine) transitionTransactions(plan *transitionPlan, target Batch, original decimal.Decimal, parent *Batch) []Transaction {
	primary := Transaction{
		ID:          e.newID(),
		BatchID:     target.ID,
		BatchCode:   target.Code(),
		Type:        primaryType(plan.to),
		WeightKg:    target.WeightKg,
		Date:        plan.date,
		Description: describeTransition(plan, target, parent),
	}
	if plan.kind.reweighs() {
		primary.OriginalWeightKg = decimal.NewNullDecimal(original)
	}
	txs := []Transaction{primary}

	if !plan.kind.reweighs() {
		return txs
	}
	delta := original.Sub(target.WeightKg)
	if delta.IsZero() {
		return txs
	}

	adj := Transaction{
		ID:        e.newID(),
		BatchID:   target.ID,
		BatchCode: target.Code(),
		Type:      TxLoss,
		WeightKg:  delta,
		Date:      plan.date,
	}
	if delta.IsNegative() {
		adj.Type = TxGain
		adj.WeightKg = delta.Neg()
		adj.Description = fmt.Sprintf("Weight gain recorded at %s", plan.to)
	} else {
		adj.Description = fmt.Sprintf("Process loss recorded at %s", plan.to)
	}
	return append(txs, adj)
}

func describeTransition(plan *transitionPlan, target Batch, parent *Batch) string {
	var desc string
	switch plan.kind {
	case edgeBeginProcessing:
		desc = "Processing started"
	case edgeFinalize:
		desc = fmt.Sprintf("Processing finalized. Final weight: %s kg", target.WeightKg)
	case edgeExtrudeSend:
		desc = fmt.Sprintf("Sent to extrusion at %s", plan.partner.Name)
	case edgeExtrudeReturn:
		desc = fmt.Sprintf("Returned from extrusion. Returned weight: %s kg", target.WeightKg)
	case edgeSell:
		desc = "Sale to " + plan.partner.Name
		if plan.price.Valid {
			desc += fmt.Sprintf(" (%s/kg)", plan.price.Decimal.StringFixed(2))
		}
	}
	if parent != nil {
		desc += fmt.Sprintf(" [partial from %s, %s kg remaining]", parent.Code(), parent.WeightKg)
	}
	return desc
}

// =============================================================================
// DELETE BATCH
// =============================================================================

// DeleteBatch removes a batch. Its transactions and financial entries stay as
// historical records.
func (e *Engine) DeleteBatch(ctx context.Context, batchID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.commit(ctx, "delete_batch", func(s *State) error {
		i := s.batchIndex(batchID)
		if i < 0 {
			return ErrBatchNotFound
		}
		s.Batches = append(s.Batches[:i], s.Batches[i+1:]...)
		return nil
	})
}

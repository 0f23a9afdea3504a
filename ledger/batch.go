/*
batch.go - Batch state machine and weight rules

STATE MACHINE:

	raw ──▶ processing ──▶ finished ──┬──▶ sold
	                                  │
	                                  └──▶ extruding ──▶ extruded ──┬──▶ sold
	                                           ▲                    │
	                                           └────────────────────┘

  finished and extruded are the saleable states. There is no edge back to
  raw and nothing leaves sold.

WEIGHT RULES PER EDGE:
  raw → processing        weight ignored, no loss
  processing → finished   final weight required; loss/gain = original - final
  * → extruding           weight optional (default: all); partial dispatch splits
  extruding → extruded    returned weight required; loss/gain = sent - returned
  * → sold                weight required, ≤ available; partial sale splits

PARTIAL SPLIT:
  The remainder stays in the parent with its status unchanged; a child
  batch takes the dispatched/sold weight and the target status. Mass is
  conserved: parent(after) + child == parent(before).
*/
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// edge kinds drive weight and side-effect handling.
type edgeKind int

const (
	edgeBeginProcessing edgeKind = iota
	edgeFinalize
	edgeExtrudeSend
	edgeExtrudeReturn
	edgeSell
)

var transitions = func() map[Status]map[Status]edgeKind {
	t := map[Status]map[Status]edgeKind{
		StatusRaw:        {StatusProcessing: edgeBeginProcessing},
		StatusProcessing: {StatusFinished: edgeFinalize},
		StatusFinished:   {StatusExtruding: edgeExtrudeSend},
		StatusExtruding:  {StatusExtruded: edgeExtrudeReturn},
		StatusExtruded:   {StatusExtruding: edgeExtrudeSend},
	}
	// every saleable status has the sell edge
	for _, s := range Statuses {
		if s.Saleable() {
			t[s][StatusSold] = edgeSell
		}
	}
	return t
}()

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// NextStatuses lists the statuses reachable from s in one step.
func NextStatuses(s Status) []Status {
	var out []Status
	for _, candidate := range Statuses {
		if CanTransition(s, candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

func lookupEdge(b Batch, to Status) (edgeKind, error) {
	kind, ok := transitions[b.Status][to]
	if !ok {
		return 0, &TransitionError{BatchCode: b.Code(), From: b.Status, To: to}
	}
	return kind, nil
}

// reweighs reports whether the edge establishes a new authoritative weight.
func (k edgeKind) reweighs() bool {
	return k == edgeFinalize || k == edgeExtrudeReturn
}

// splits reports whether the edge may split the batch.
func (k edgeKind) splits() bool {
	return k == edgeExtrudeSend || k == edgeSell
}

// primaryType maps a target status to its transaction type.
func primaryType(to Status) TransactionType {
	switch to {
	case StatusSold:
		return TxSale
	case StatusExtruding:
		return TxExtruding
	case StatusExtruded:
		return TxExtruded
	default:
		return TxProduction
	}
}

// splitPrefix is the display path element prefix of a child batch.
func splitPrefix(to Status) string {
	if to == StatusSold {
		return "S"
	}
	return "E"
}

// resolveWeight validates the requested weight for an edge and returns the
// weight the transition will act on.
func resolveWeight(b Batch, kind edgeKind, requested decimal.NullDecimal) (decimal.Decimal, error) {
	switch kind {
	case edgeBeginProcessing:
		return b.WeightKg, nil

	case edgeFinalize, edgeExtrudeReturn:
		if !requested.Valid || !requested.Decimal.IsPositive() {
			return decimal.Zero, ErrInvalidWeight
		}
		return requested.Decimal, nil

	case edgeExtrudeSend:
		if !requested.Valid {
			return b.WeightKg, nil
		}
		fallthrough

	default: // sell
		if !requested.Valid || !requested.Decimal.IsPositive() {
			return decimal.Zero, ErrInvalidWeight
		}
		if requested.Decimal.GreaterThan(b.WeightKg) {
			return decimal.Zero, &InsufficientWeightError{
				BatchCode: b.Code(),
				Available: b.WeightKg,
				Requested: requested.Decimal,
			}
		}
		return requested.Decimal, nil
	}
}

// splitChild derives the sub-batch taking weight w of parent into status to.
// The parent's split counter must already be incremented.
func splitChild(parent Batch, id string, to Status, w decimal.Decimal) Batch {
	child := parent.clone()
	child.ID = id
	child.ParentID = parent.ID
	child.SplitPath = append(child.SplitPath, fmt.Sprintf("%s-%02d", splitPrefix(to), parent.Splits))
	child.Splits = 0
	child.WeightKg = w
	child.Status = to
	return child
}

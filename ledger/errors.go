/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every command validates fully before mutating, so any error returned
  here means nothing was written.

ERROR CATEGORIES:
  1. Not-found errors - a referenced batch/partner/material/entry/order is unknown
  2. Invalid input - bad weight, bad code, wrong partner role, illegal transition
  3. Conflicts - duplicate codes, deletion of referenced reference data

USAGE:
  if errors.Is(err, ledger.ErrInsufficientWeight) {
      var iw *ledger.InsufficientWeightError
      errors.As(err, &iw)
      ...
  }

SEE ALSO:
  - api/handlers.go: maps these errors to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrBatchNotFound     = errors.New("batch not found")
	ErrPartnerNotFound   = errors.New("partner not found")
	ErrMaterialNotFound  = errors.New("material not found")
	ErrEntryNotFound     = errors.New("financial entry not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderItemNotFound = errors.New("order item not found")

	// ErrInvalidWeight is returned for missing, zero or negative weights.
	ErrInvalidWeight = errors.New("weight must be a positive number")

	// ErrInsufficientWeight is returned when a sale or dispatch exceeds the batch weight.
	ErrInsufficientWeight = errors.New("weight exceeds available stock")

	// ErrInvalidTransition is returned for an edge the batch state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidStatusTransition is returned when a financial entry would move paid -> pending.
	ErrInvalidStatusTransition = errors.New("invalid financial entry status transition")

	ErrInvalidCode   = errors.New("code must be exactly 3 digits")
	ErrDuplicateCode = errors.New("code already in use")
	ErrPartnerRole   = errors.New("partner does not hold the required role")
	ErrOrderClosed   = errors.New("order is cancelled")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrReferenced is returned when deleting or recoding reference data still used by a batch.
	ErrReferenced = errors.New("referenced by existing batches")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientWeightError provides details about a stock shortage.
type InsufficientWeightError struct {
	BatchCode string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientWeightError) Error() string {
	return fmt.Sprintf("batch %s: requested %s kg, only %s kg available",
		e.BatchCode, e.Requested, e.Available)
}

func (e *InsufficientWeightError) Unwrap() error {
	return ErrInsufficientWeight
}

// TransitionError describes a rejected state machine edge.
type TransitionError struct {
	BatchCode string
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("batch %s: cannot move from %s to %s", e.BatchCode, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// RoleError is returned when a partner is used in a role it does not hold.
type RoleError struct {
	PartnerID string
	Role      Role
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("partner %s is not a %s", e.PartnerID, e.Role)
}

func (e *RoleError) Unwrap() error {
	return ErrPartnerRole
}

// DeletionConflictError is returned when reference data is still used by batches.
type DeletionConflictError struct {
	Kind       string // "partner" or "material"
	Code       string
	BatchCodes []string
}

func (e *DeletionConflictError) Error() string {
	return fmt.Sprintf("%s %s is referenced by %d batch(es)", e.Kind, e.Code, len(e.BatchCodes))
}

func (e *DeletionConflictError) Unwrap() error {
	return ErrReferenced
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBatchNotFound) ||
		errors.Is(err, ErrPartnerNotFound) ||
		errors.Is(err, ErrMaterialNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrOrderItemNotFound)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidWeight) ||
		errors.Is(err, ErrInsufficientWeight) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidStatusTransition) ||
		errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrPartnerRole) ||
		errors.Is(err, ErrInvalidInput)
}

// IsConflict returns true if the error is a uniqueness or reference conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateCode) ||
		errors.Is(err, ErrReferenced) ||
		errors.Is(err, ErrOrderClosed)
}

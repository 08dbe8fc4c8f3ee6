/*
errors.go - Centralized error types for the inventory engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Services return these (wrapped or structured) and the HTTP layer maps
  them to status codes with the helpers at the bottom of this file.

ERROR CATEGORIES:
  1. Not found      - entity missing or owned by another company
  2. Conflict       - uniqueness violations, duplicate closings
  3. State errors   - illegal closing or invoice transitions
  4. Stock errors   - insufficient stock, concurrent modification
  5. Validation     - bad input, incomplete closing line items
  6. Gate errors    - prior business day not closed

USAGE:
  if errors.Is(err, inventory.ErrInsufficientStock) {
      var ise *inventory.InsufficientStockError
      errors.As(err, &ise) // which ref, how much
  }

SEE ALSO:
  - ledger.go: InsufficientStockError
  - api/errors.go: HTTP mapping
*/
package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when an entity does not exist for the company.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on uniqueness violations.
	ErrConflict = errors.New("conflict")

	// ErrInvalidStateTransition is returned when an operation is not allowed
	// in the entity's current state.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrInsufficientStock is returned when a withdrawal exceeds current stock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConcurrentModification is returned when a versioned write lost a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrIncompleteLineItems is returned when a closing cannot be pre-completed
	// because some line items have no valid count.
	ErrIncompleteLineItems = errors.New("incomplete line items")

	// ErrPriorDayNotClosed is returned when a sale is attempted before the
	// required business day has a completed closing.
	ErrPriorDayNotClosed = errors.New("prior business day not closed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError describes a uniqueness violation with the offending value.
type ConflictError struct {
	Entity string
	Field  string
	Value  string
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s conflict: %s", e.Entity, e.Value)
	}
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StateTransitionError describes an illegal transition of a closing or an
// invoice. To is empty when the operation is an edit rather than a move.
type StateTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
	Reason string
}

func (e *StateTransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("%s %s in state %s: %s", e.Entity, e.ID, e.From, e.Reason)
	}
	return fmt.Sprintf("%s %s cannot move from %s to %s: %s", e.Entity, e.ID, e.From, e.To, e.Reason)
}

func (e *StateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// InsufficientStockError reports the first subject that could not cover a withdrawal.
type InsufficientStockError struct {
	Ref       StockRef
	Name      string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.Ref.String()
	}
	return fmt.Sprintf("insufficient stock for %s: available %s, requested %s",
		name, e.Available.String(), e.Requested.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ValidationError describes one bad input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IncompleteLineItemsError lists the line items still missing a count. It is
// both ErrIncompleteLineItems and ErrInvalidStateTransition.
type IncompleteLineItemsError struct {
	ClosingID ClosingID
	Missing   []LineItemID
}

func (e *IncompleteLineItemsError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = string(id)
	}
	return fmt.Sprintf("closing %s has %d line items without a valid count: %s",
		e.ClosingID, len(e.Missing), strings.Join(ids, ", "))
}

func (e *IncompleteLineItemsError) Unwrap() []error {
	return []error{ErrIncompleteLineItems, ErrInvalidStateTransition}
}

// PriorDayNotClosedError names the business day that must be closed first.
type PriorDayNotClosedError struct {
	Date Date
}

func (e *PriorDayNotClosedError) Error() string {
	return fmt.Sprintf("closing for %s must be completed before invoicing", e.Date)
}

func (e *PriorDayNotClosedError) Unwrap() error { return ErrPriorDayNotClosed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsBusinessRule returns true if the error is a rule violation the user can
// act on, as opposed to bad input or an infrastructure fault.
func IsBusinessRule(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrPriorDayNotClosed)
}

// IsConflict returns true on uniqueness violations.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

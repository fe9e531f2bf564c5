package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals an unknown order, item or product.
	ErrNotFound = errors.New("orders: not found")
	// ErrForbidden signals the actor is not entitled to the mutation.
	ErrForbidden = errors.New("orders: forbidden")
	// ErrInvalidTransition signals a move outside the status table.
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	// ErrInsufficientStock signals a quantity above the available stock.
	ErrInsufficientStock = errors.New("orders: insufficient stock")
	// ErrValidation signals malformed input.
	ErrValidation = errors.New("orders: validation failed")
	// ErrSelfPurchase signals a buyer ordering their own product.
	ErrSelfPurchase = errors.New("orders: self purchase forbidden")
	// ErrStoreUnavailable signals an infrastructure failure; the request may be retried.
	ErrStoreUnavailable = errors.New("orders: store unavailable")

	errDuplicateExternalID = errors.New("orders: duplicate external id")
)

var domainErrors = []error{
	ErrNotFound,
	ErrForbidden,
	ErrInvalidTransition,
	ErrInsufficientStock,
	ErrValidation,
	ErrSelfPurchase,
	ErrStoreUnavailable,
}

// IsDomainError reports whether err belongs to the caller-facing taxonomy.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type TransitionError struct {
	From   Status
	To     Status
	Action string
}

func (e *TransitionError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("orders: cannot %s while order is %s", e.Action, e.From)
	}
	return fmt.Sprintf("orders: invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("orders: insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "orders: " + e.Reason
	}
	return fmt.Sprintf("orders: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

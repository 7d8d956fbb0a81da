package orders

import "errors"

// Domain errors for the order aggregate. Every kind maps to a distinct
// user-facing message at the HTTP layer.
var (
	// ErrNotFound indicates the requested order does not exist.
	ErrNotFound = errors.New("order not found")

	// Status machine errors.
	ErrInvalidTransition = errors.New("status transition not permitted")
	ErrInvalidOrderState = errors.New("order is not in the required status")
	ErrWorkerUnavailable = errors.New("worker missing or inactive")

	// Payment errors.
	ErrAlreadyPaid      = errors.New("order already paid")
	ErrPaymentCancelled = errors.New("order payment was cancelled")
	ErrAmountMismatch   = errors.New("amount does not match order total")
	ErrInvalidAmount    = errors.New("payment amount must be positive")

	// Validation errors.
	ErrEmptyItems       = errors.New("at least one item is required")
	ErrInvalidQuantity  = errors.New("item quantity must be greater than zero")
	ErrInvalidUnitPrice = errors.New("item unit price must not be negative")

	// Rating errors.
	ErrNotCompleted = errors.New("only completed orders can be rated")
	ErrAlreadyRated = errors.New("order already rated")

	// ErrVersionConflict signals a concurrent write; services retry on it.
	ErrVersionConflict = errors.New("order was modified concurrently")
)

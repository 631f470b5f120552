package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether email or password failed.
	// The reason is to prevent account-enumeration side channels.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals temporary lockout after repeated failed attempts.
	// Wrap it in AccountLockedError when the remaining lock time is known.
	ErrAccountLocked = errors.New("account locked")
	// ErrInsufficientStock is the base sentinel for failed stock reservations.
	// Wrap it in InsufficientStockError to name the offending product.
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrLineNotFound      = errors.New("product not in cart")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	// ErrInvalidTransition rejects order status changes outside the forward-only table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrIdempotencyConflict is returned when an Idempotency-Key is reused with a different request.
	ErrIdempotencyConflict = errors.New("idempotency conflict")
)

// AccountLockedError carries the remaining lock time so the login endpoint
// can tell the caller when to retry.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	minutes := int(e.RetryAfter.Minutes())
	if e.RetryAfter > 0 && minutes == 0 {
		minutes = 1
	}
	return fmt.Sprintf("account locked, try again in %d minutes", minutes)
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// InsufficientStockError names the product that could not be reserved.
type InsufficientStockError struct {
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

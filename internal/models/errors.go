package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrPayment           = errors.New("payment failed")
)

// StockError names the product that blocked a purchase. It unwraps to
// ErrNotFound when the product is missing and ErrInsufficientStock otherwise.
type StockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
	Missing   bool
}

func (e *StockError) Error() string {
	if e.Missing {
		return fmt.Sprintf("product %d not found", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %q (product %d): available=%d, requested=%d",
		e.Name, e.ProductID, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error {
	if e.Missing {
		return ErrNotFound
	}
	return ErrInsufficientStock
}

// Invalid wraps ErrInvalidInput with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

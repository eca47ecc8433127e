package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRate is returned when a non-functional conversion receives a rate <= 0.
	ErrInvalidRate = errors.New("pricing: exchange rate must be positive")
	// ErrDiscountExceedsLine is returned when a line discount is larger than the line amount.
	ErrDiscountExceedsLine = errors.New("pricing: line discount exceeds line amount")
	// ErrNegativeDiscount is returned when a discount amount is below zero.
	ErrNegativeDiscount = errors.New("pricing: discount must not be negative")
	// ErrDuplicateUnit indicates a unit plan lists the same unit code twice.
	ErrDuplicateUnit = errors.New("pricing: duplicate unit in plan")
	// ErrInvalidFactor indicates a unit plan carries a non-positive factor or a base unit factor other than 1.
	ErrInvalidFactor = errors.New("pricing: invalid unit factor")
)

// RateError describes the currency and rate that failed validation.
type RateError struct {
	Currency string
	Rate     decimal.Decimal
}

func (e *RateError) Error() string {
	return fmt.Sprintf("%s: currency %s rate %s", ErrInvalidRate.Error(), e.Currency, e.Rate.String())
}

// Unwrap allows errors.Is(err, ErrInvalidRate).
func (e *RateError) Unwrap() error { return ErrInvalidRate }

// LineError attaches the offending line position to a line-level failure.
type LineError struct {
	Index int
	Err   error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Index, e.Err)
}

// Unwrap exposes the underlying sentinel.
func (e *LineError) Unwrap() error { return e.Err }

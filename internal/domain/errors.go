package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/currency"
)

var (
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrLineNotFound           = errors.New("cart line not found")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrConcurrentModification = errors.New("cart was modified concurrently")
	ErrCollaboratorTimeout    = errors.New("collaborator call timed out")
	ErrPersistenceFailed      = errors.New("order persistence failed")

	// sentinels matched by the structured errors below, so callers can use
	// errors.Is for the category and errors.As for the detail
	ErrCurrencyMismatch   = errors.New("currency mismatch")
	ErrPriceChanged       = errors.New("price changed")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrRuleConflict       = errors.New("discount rule conflict")
)

// CurrencyMismatchError reports arithmetic attempted across two currencies.
type CurrencyMismatchError struct {
	Left  currency.Unit
	Right currency.Unit
}

func (e CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s vs %s", e.Left, e.Right)
}

func (e CurrencyMismatchError) Is(target error) bool {
	return target == ErrCurrencyMismatch
}

// PriceChangedError reports a catalog price that no longer matches the price
// captured in a cart line. Checkout never auto-accepts the new price; the
// caller must re-issue the request with an explicit acknowledgment.
type PriceChangedError struct {
	ProductID uuid.UUID
	OldPrice  Money
	NewPrice  Money
}

func (e PriceChangedError) Error() string {
	return fmt.Sprintf("price of product[%s] changed from %s to %s", e.ProductID, e.OldPrice, e.NewPrice)
}

func (e PriceChangedError) Is(target error) bool {
	return target == ErrPriceChanged
}

// ProductUnavailableError reports a cart line whose product is gone from the
// catalog.
type ProductUnavailableError struct {
	ProductID uuid.UUID
}

func (e ProductUnavailableError) Error() string {
	return fmt.Sprintf("product[%s] is not available", e.ProductID)
}

func (e ProductUnavailableError) Is(target error) bool {
	return target == ErrProductUnavailable
}

// RuleConflictError reports two mutually exclusive discount rules matching
// the same cart.
type RuleConflictError struct {
	First  string
	Second string
}

func (e RuleConflictError) Error() string {
	return fmt.Sprintf("discount rules [%s] and [%s] are mutually exclusive", e.First, e.Second)
}

func (e RuleConflictError) Is(target error) bool {
	return target == ErrRuleConflict
}

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/currency"
)

// CartLine is one product in a cart. UnitPrice is the catalog price captured
// when the product was first added; re-adding the same product merges
// quantities and keeps the captured price.
type CartLine struct {
	ProductID uuid.UUID
	UnitPrice Money
	Quantity  int64

	AddedAt time.Time
}

func (l CartLine) Validate() error {
	if l.ProductID == uuid.Nil {
		return fmt.Errorf("productID is nil: %w", ErrInvalidArgument)
	}

	if l.Quantity <= 0 {
		return fmt.Errorf("quantity[%d]: %w", l.Quantity, ErrInvalidQuantity)
	}

	if l.UnitPrice.Negative() {
		return fmt.Errorf("unit price[%s] is negative: %w", l.UnitPrice, ErrInvalidArgument)
	}

	return nil
}

// Subtotal is UnitPrice times Quantity.
func (l CartLine) Subtotal() (Money, error) {
	return l.UnitPrice.MulInt(l.Quantity)
}

// CartSnapshot is an immutable, consistent copy of a cart's lines and
// version. It never aliases store-owned memory.
type CartSnapshot struct {
	CartID   string
	Currency currency.Unit
	Lines    []CartLine
	Version  uint64
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// ItemCount is the total quantity across all lines.
func (s CartSnapshot) ItemCount() int64 {
	var n int64
	for _, line := range s.Lines {
		n += line.Quantity
	}

	return n
}

type EventKind int

const (
	EventAdded EventKind = iota
	EventRemoved
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// CartEvent notifies observers of a cart mutation. Delivery is best-effort.
type CartEvent struct {
	CartID  string
	Version uint64
	Kind    EventKind
}

// Product is a catalog lookup result.
type Product struct {
	ID    uuid.UUID
	Price Money
}

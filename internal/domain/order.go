package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderLine is a resolved cart line at checkout time. UnitPrice is the price
// the order was actually charged at, which may differ from the captured cart
// price when the caller accepted a price change.
type OrderLine struct {
	ProductID uuid.UUID
	UnitPrice Money
	Quantity  int64
	Subtotal  Money
}

// Order is the immutable result of a completed checkout. It is constructed
// once by the checkout coordinator and never mutated afterwards.
type Order struct {
	ID     uuid.UUID
	CartID string
	Lines  []OrderLine

	Subtotal Money
	Discount Money
	Tax      Money
	Total    Money

	CreatedAt         time.Time
	SourceCartVersion uint64
}

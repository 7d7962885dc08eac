package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/cart-engine/internal/domain"
)

// CartStore owns cart state. Mutations on the same cart are serialized;
// different carts never contend. Every mutation bumps the cart version and
// emits a change event to the configured sink.
type CartStore interface {
	// AddItem merges quantity into an existing line (first-seen price wins)
	// or creates a new line. Returns the new cart version.
	AddItem(cartID string, productID uuid.UUID, unitPrice domain.Money, quantity int64) (uint64, error)

	// RemoveItem decrements a line's quantity, deleting the line when it
	// reaches zero. Absence of the line is an error, never a no-op.
	RemoveItem(cartID string, productID uuid.UUID, quantity int64) (uint64, error)

	// Clear empties the cart. Idempotent: clearing an empty cart still
	// succeeds and bumps the version.
	Clear(cartID string) (uint64, error)

	// ClearIfVersion clears the cart only if its version still equals
	// expectedVersion, reporting whether it did.
	ClearIfVersion(cartID string, expectedVersion uint64) (bool, error)

	// Snapshot returns a consistent immutable copy of lines and version.
	Snapshot(cartID string) (domain.CartSnapshot, error)

	// Finalize runs build under the cart's exclusive lock after verifying
	// the version still equals expectedVersion. No other mutation on the
	// cart proceeds while build runs; build must not call collaborators.
	Finalize(cartID string, expectedVersion uint64, build func(domain.CartSnapshot) (domain.Order, error)) (domain.Order, error)
}

// Catalog is the product catalog collaborator. The boolean reports whether
// the product exists.
type Catalog interface {
	GetProduct(ctx context.Context, productID uuid.UUID) (domain.Product, bool, error)
}

// OrderStore is the order persistence collaborator.
type OrderStore interface {
	SaveOrder(ctx context.Context, order domain.Order) error
}

// OrderRepository is a readable order store.
type OrderRepository interface {
	OrderStore

	GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error)
}

// EventSink receives cart change notifications. Implementations must not
// block; delivery is best-effort.
type EventSink interface {
	CartChanged(event domain.CartEvent)
}

package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/cart-engine/internal/domain"
	"github.com/nikolayk812/cart-engine/internal/port"
	"github.com/nikolayk812/cart-engine/internal/pricing"
	"go.uber.org/zap"
)

// Request asks for a single checkout attempt. AcceptPriceChanges confirms
// catalog prices that drifted from the captured cart prices; without it any
// drift rejects the attempt with a PriceChangedError.
type Request struct {
	CartID             string
	AcceptPriceChanges bool
}

// Coordinator drives one checkout attempt through validation, price
// reconciliation and commit. It never retries: every failure is reported
// with a typed reason and the cart is left for the caller to retry.
type Coordinator struct {
	store   port.CartStore
	catalog port.Catalog
	orders  port.OrderStore
	engine  *pricing.Engine

	logger *zap.Logger
	now    func() time.Time
	newID  func() uuid.UUID
}

type Option func(*Coordinator)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(c *Coordinator) { c.newID = newID }
}

func New(store port.CartStore, catalog port.Catalog, orders port.OrderStore, engine *pricing.Engine, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	if orders == nil {
		return nil, fmt.Errorf("orders is nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}

	c := &Coordinator{
		store:   store,
		catalog: catalog,
		orders:  orders,
		engine:  engine,
		logger:  zap.NewNop(),
		now:     time.Now,
		newID:   uuid.New,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Checkout runs one attempt to completion. The attempt may be cancelled via
// ctx until the commit begins; the commit itself is in-memory and runs to
// completion. Catalog and persistence calls happen outside the cart lock.
func (c *Coordinator) Checkout(ctx context.Context, req Request) (domain.Order, error) {
	var zero domain.Order

	if req.CartID == "" {
		return zero, fmt.Errorf("cartID is empty: %w", domain.ErrInvalidArgument)
	}

	// Validating
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("ctx.Err: %w", err)
	}
	c.logPhase(req.CartID, "validating")

	snapshot, err := c.store.Snapshot(req.CartID)
	if err != nil {
		return zero, fmt.Errorf("store.Snapshot: %w", err)
	}

	if snapshot.IsEmpty() {
		return zero, fmt.Errorf("cart[%s]: %w", req.CartID, domain.ErrEmptyCart)
	}

	products, err := c.fetchProducts(ctx, snapshot)
	if err != nil {
		return zero, err
	}

	// PriceReconciling
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("ctx.Err: %w", err)
	}
	c.logPhase(req.CartID, "price_reconciling")

	resolved, err := reconcilePrices(snapshot, products, req.AcceptPriceChanges)
	if err != nil {
		return zero, err
	}

	// Committing: version check, totals and Order construction run under
	// the cart's exclusive lock, with no collaborator calls inside.
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("ctx.Err: %w", err)
	}
	c.logPhase(req.CartID, "committing")

	order, err := c.store.Finalize(req.CartID, snapshot.Version, func(current domain.CartSnapshot) (domain.Order, error) {
		return c.buildOrder(current, resolved)
	})
	if err != nil {
		return zero, fmt.Errorf("store.Finalize: %w", err)
	}

	if err := c.orders.SaveOrder(ctx, order); err != nil {
		if isTimeout(err) {
			return zero, fmt.Errorf("orders.SaveOrder: %w: %w", domain.ErrCollaboratorTimeout, err)
		}

		// cart stays intact so the caller can retry without losing items
		return zero, fmt.Errorf("orders.SaveOrder: %w: %w", domain.ErrPersistenceFailed, err)
	}

	cleared, err := c.store.ClearIfVersion(req.CartID, order.SourceCartVersion)
	if err != nil {
		return zero, fmt.Errorf("store.ClearIfVersion: %w", err)
	}
	if !cleared {
		// the order is durable; a mutation during persistence keeps the cart
		c.logger.Warn("cart changed during persistence, clear skipped",
			zap.String("cart_id", req.CartID),
			zap.Uint64("source_version", order.SourceCartVersion))
	}

	c.logPhase(req.CartID, "completed")

	return order, nil
}

// fetchProducts looks up every line's product, failing on the first missing
// one.
func (c *Coordinator) fetchProducts(ctx context.Context, snapshot domain.CartSnapshot) (map[uuid.UUID]domain.Product, error) {
	products := make(map[uuid.UUID]domain.Product, len(snapshot.Lines))

	for _, line := range snapshot.Lines {
		product, exists, err := c.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if isTimeout(err) {
				return nil, fmt.Errorf("catalog.GetProduct: %w: %w", domain.ErrCollaboratorTimeout, err)
			}

			return nil, fmt.Errorf("catalog.GetProduct: %w", err)
		}

		if !exists {
			return nil, domain.ProductUnavailableError{ProductID: line.ProductID}
		}

		products[line.ProductID] = product
	}

	return products, nil
}

// reconcilePrices maps each product to the price the order will charge.
// A drifted price is an error unless the caller explicitly accepted changes,
// in which case the current catalog price wins.
func reconcilePrices(snapshot domain.CartSnapshot, products map[uuid.UUID]domain.Product, accept bool) (map[uuid.UUID]domain.Money, error) {
	resolved := make(map[uuid.UUID]domain.Money, len(snapshot.Lines))

	for _, line := range snapshot.Lines {
		product := products[line.ProductID]

		cmp, err := line.UnitPrice.Cmp(product.Price)
		if err != nil {
			return nil, fmt.Errorf("unitPrice.Cmp product[%s]: %w", line.ProductID, err)
		}

		if cmp != 0 && !accept {
			return nil, domain.PriceChangedError{
				ProductID: line.ProductID,
				OldPrice:  line.UnitPrice,
				NewPrice:  product.Price,
			}
		}

		resolved[line.ProductID] = product.Price
	}

	return resolved, nil
}

func (c *Coordinator) buildOrder(snapshot domain.CartSnapshot, resolved map[uuid.UUID]domain.Money) (domain.Order, error) {
	var zero domain.Order

	priced := snapshot
	priced.Lines = make([]domain.CartLine, len(snapshot.Lines))
	copy(priced.Lines, snapshot.Lines)

	for i := range priced.Lines {
		if price, ok := resolved[priced.Lines[i].ProductID]; ok {
			priced.Lines[i].UnitPrice = price
		}
	}

	totals, err := c.engine.Price(priced)
	if err != nil {
		return zero, fmt.Errorf("engine.Price: %w", err)
	}

	lines := make([]domain.OrderLine, 0, len(totals.Lines))
	for _, lt := range totals.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID: lt.Line.ProductID,
			UnitPrice: lt.Line.UnitPrice,
			Quantity:  lt.Line.Quantity,
			Subtotal:  lt.Subtotal,
		})
	}

	return domain.Order{
		ID:                c.newID(),
		CartID:            snapshot.CartID,
		Lines:             lines,
		Subtotal:          totals.Subtotal,
		Discount:          totals.Discount,
		Tax:               totals.Tax,
		Total:             totals.Total,
		CreatedAt:         c.now(),
		SourceCartVersion: snapshot.Version,
	}, nil
}

func (c *Coordinator) logPhase(cartID, phase string) {
	c.logger.Debug("checkout phase",
		zap.String("cart_id", cartID),
		zap.String("phase", phase))
}

// isTimeout matches only deadline expiry; caller cancellation is not a
// collaborator timeout and surfaces as-is.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/cart-engine/internal/domain"
	"github.com/nikolayk812/cart-engine/internal/port"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
)

const defaultEventBuffer = 64

// Memory is an in-memory CartStore. The outer RWMutex only guards the cart
// map; each cart carries its own RWMutex, so mutations on different carts
// never contend and mutations on the same cart are serialized.
type Memory struct {
	mu    sync.RWMutex
	carts map[string]*cartEntry

	sink   port.EventSink
	events chan domain.CartEvent
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	logger *zap.Logger
}

type cartEntry struct {
	mu sync.RWMutex

	// currency is pinned by the first added line and reset on clear.
	currency currency.Unit
	lines    []domain.CartLine
	version  uint64
}

type Option func(*Memory)

func WithEventSink(sink port.EventSink) Option {
	return func(m *Memory) { m.sink = sink }
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Memory) { m.logger = logger }
}

func WithEventBuffer(size int) Option {
	return func(m *Memory) { m.events = make(chan domain.CartEvent, size) }
}

func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		carts:  make(map[string]*cartEntry),
		events: make(chan domain.CartEvent, defaultEventBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(m)
	}

	go m.dispatch()

	return m
}

var _ port.CartStore = (*Memory)(nil)

// Close stops the event dispatcher. Mutations after Close still succeed but
// their events are dropped.
func (m *Memory) Close() {
	m.once.Do(func() {
		close(m.quit)
		<-m.done
	})
}

func (m *Memory) AddItem(cartID string, productID uuid.UUID, unitPrice domain.Money, quantity int64) (uint64, error) {
	if cartID == "" {
		return 0, fmt.Errorf("cartID is empty: %w", domain.ErrInvalidArgument)
	}

	line := domain.CartLine{
		ProductID: productID,
		UnitPrice: unitPrice,
		Quantity:  quantity,
		AddedAt:   time.Now(),
	}
	if err := line.Validate(); err != nil {
		return 0, fmt.Errorf("line.Validate: %w", err)
	}

	entry := m.entry(cartID, true)

	entry.mu.Lock()
	if len(entry.lines) == 0 {
		entry.currency = unitPrice.Currency
	} else if unitPrice.Currency != entry.currency {
		entry.mu.Unlock()
		return 0, domain.CurrencyMismatchError{Left: entry.currency, Right: unitPrice.Currency}
	}

	merged := false
	for i := range entry.lines {
		if entry.lines[i].ProductID == productID {
			// first-seen price wins, only the quantity grows
			entry.lines[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		entry.lines = append(entry.lines, line)
	}

	entry.version++
	version := entry.version
	entry.mu.Unlock()

	m.publish(domain.CartEvent{CartID: cartID, Version: version, Kind: domain.EventAdded})

	return version, nil
}

func (m *Memory) RemoveItem(cartID string, productID uuid.UUID, quantity int64) (uint64, error) {
	if cartID == "" {
		return 0, fmt.Errorf("cartID is empty: %w", domain.ErrInvalidArgument)
	}

	if quantity <= 0 {
		return 0, fmt.Errorf("quantity[%d]: %w", quantity, domain.ErrInvalidQuantity)
	}

	entry := m.entry(cartID, false)
	if entry == nil {
		return 0, fmt.Errorf("cart[%s] product[%s]: %w", cartID, productID, domain.ErrLineNotFound)
	}

	entry.mu.Lock()

	idx := -1
	for i := range entry.lines {
		if entry.lines[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		entry.mu.Unlock()
		return 0, fmt.Errorf("cart[%s] product[%s]: %w", cartID, productID, domain.ErrLineNotFound)
	}

	entry.lines[idx].Quantity -= quantity
	if entry.lines[idx].Quantity <= 0 {
		entry.lines = append(entry.lines[:idx], entry.lines[idx+1:]...)
	}
	if len(entry.lines) == 0 {
		entry.currency = currency.Unit{}
	}

	entry.version++
	version := entry.version
	entry.mu.Unlock()

	m.publish(domain.CartEvent{CartID: cartID, Version: version, Kind: domain.EventRemoved})

	return version, nil
}

func (m *Memory) Clear(cartID string) (uint64, error) {
	if cartID == "" {
		return 0, fmt.Errorf("cartID is empty: %w", domain.ErrInvalidArgument)
	}

	entry := m.entry(cartID, true)

	entry.mu.Lock()
	entry.lines = nil
	entry.currency = currency.Unit{}
	entry.version++
	version := entry.version
	entry.mu.Unlock()

	m.publish(domain.CartEvent{CartID: cartID, Version: version, Kind: domain.EventCleared})

	return version, nil
}

func (m *Memory) ClearIfVersion(cartID string, expectedVersion uint64) (bool, error) {
	if cartID == "" {
		return false, fmt.Errorf("cartID is empty: %w", domain.ErrInvalidArgument)
	}

	entry := m.entry(cartID, false)
	if entry == nil {
		return false, nil
	}

	entry.mu.Lock()
	if entry.version != expectedVersion {
		current := entry.version
		entry.mu.Unlock()

		m.logger.Warn("conditional clear skipped",
			zap.String("cart_id", cartID),
			zap.Uint64("expected_version", expectedVersion),
			zap.Uint64("current_version", current))

		return false, nil
	}

	entry.lines = nil
	entry.currency = currency.Unit{}
	entry.version++
	version := entry.version
	entry.mu.Unlock()

	m.publish(domain.CartEvent{CartID: cartID, Version: version, Kind: domain.EventCleared})

	return true, nil
}

func (m *Memory) Snapshot(cartID string) (domain.CartSnapshot, error) {
	if cartID == "" {
		return domain.CartSnapshot{}, fmt.Errorf("cartID is empty: %w", domain.ErrInvalidArgument)
	}

	entry := m.entry(cartID, false)
	if entry == nil {
		return domain.CartSnapshot{CartID: cartID}, nil
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	return entry.snapshotLocked(cartID), nil
}

func (m *Memory) Finalize(cartID string, expectedVersion uint64, build func(domain.CartSnapshot) (domain.Order, error)) (domain.Order, error) {
	if cartID == "" {
		return domain.Order{}, fmt.Errorf("cartID is empty: %w", domain.ErrInvalidArgument)
	}

	entry := m.entry(cartID, false)
	if entry == nil {
		return domain.Order{}, fmt.Errorf("cart[%s] version[%d] is gone: %w", cartID, expectedVersion, domain.ErrConcurrentModification)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.version != expectedVersion {
		return domain.Order{}, fmt.Errorf("cart[%s] version[%d] != expected[%d]: %w",
			cartID, entry.version, expectedVersion, domain.ErrConcurrentModification)
	}

	order, err := build(entry.snapshotLocked(cartID))
	if err != nil {
		return domain.Order{}, fmt.Errorf("build: %w", err)
	}

	return order, nil
}

// snapshotLocked copies lines under the caller-held entry lock.
func (e *cartEntry) snapshotLocked(cartID string) domain.CartSnapshot {
	lines := make([]domain.CartLine, len(e.lines))
	copy(lines, e.lines)

	return domain.CartSnapshot{
		CartID:   cartID,
		Currency: e.currency,
		Lines:    lines,
		Version:  e.version,
	}
}

func (m *Memory) entry(cartID string, create bool) *cartEntry {
	m.mu.RLock()
	e, ok := m.carts[cartID]
	m.mu.RUnlock()

	if ok || !create {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.carts[cartID]; ok {
		return e
	}

	e = &cartEntry{}
	m.carts[cartID] = e

	return e
}

func (m *Memory) publish(event domain.CartEvent) {
	if m.sink == nil {
		return
	}

	select {
	case m.events <- event:
	default:
		m.logger.Warn("event buffer full, dropping event",
			zap.String("cart_id", event.CartID),
			zap.Uint64("version", event.Version),
			zap.Stringer("kind", event.Kind))
	}
}

func (m *Memory) dispatch() {
	defer close(m.done)

	for {
		select {
		case event := <-m.events:
			if m.sink != nil {
				m.sink.CartChanged(event)
			}
		case <-m.quit:
			return
		}
	}
}

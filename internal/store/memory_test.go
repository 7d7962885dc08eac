package store_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/nikolayk812/cart-engine/internal/domain"
	"github.com/nikolayk812/cart-engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/text/currency"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func usd(minor int64) domain.Money {
	return domain.NewFromMinorUnits(minor, currency.USD)
}

func eur(minor int64) domain.Money {
	return domain.NewFromMinorUnits(minor, currency.EUR)
}

func TestMemory_AddItem_MergesQuantity(t *testing.T) {
	m := store.NewMemory()
	defer m.Close()

	cartID := gofakeit.UUID()
	productID := uuid.New()

	v1, err := m.AddItem(cartID, productID, usd(1000), 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1)

	// re-adding merges quantity, the captured price stays
	v2, err := m.AddItem(cartID, productID, usd(1500), 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v2)

	snapshot, err := m.Snapshot(cartID)
	require.NoError(t, err)

	require.Len(t, snapshot.Lines, 1)
	assert.Equal(t, int64(5), snapshot.Lines[0].Quantity)
	assert.True(t, snapshot.Lines[0].UnitPrice.Amount.Equal(usd(1000).Amount))
	assert.Equal(t, uint64(2), snapshot.Version)
}

func TestMemory_AddItem_Validation(t *testing.T) {
	m := store.NewMemory()
	defer m.Close()

	tests := []struct {
		name      string
		cartID    string
		productID uuid.UUID
		price     domain.Money
		quantity  int64
		wantError error
	}{
		{
			name:      "zero quantity",
			cartID:    gofakeit.UUID(),
			productID: uuid.New(),
			price:     usd(100),
			quantity:  0,
			wantError: domain.ErrInvalidQuantity,
		},
		{
			name:      "negative quantity",
			cartID:    gofakeit.UUID(),
			productID: uuid.New(),
			price:     usd(100),
			quantity:  -2,
			wantError: domain.ErrInvalidQuantity,
		},
		{
			name:      "empty cart ID",
			cartID:    "",
			productID: uuid.New(),
			price:     usd(100),
			quantity:  1,
			wantError: domain.ErrInvalidArgument,
		},
		{
			name:      "nil product ID",
			cartID:    gofakeit.UUID(),
			productID: uuid.Nil,
			price:     usd(100),
			quantity:  1,
			wantError: domain.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AddItem(tt.cartID, tt.productID, tt.price, tt.quantity)
			require.ErrorIs(t, err, tt.wantError)
		})
	}
}

func TestMemory_AddItem_MixedCurrency(t *testing.T) {
	m := store.NewMemory()
	defer m.Close()

	cartID := gofakeit.UUID()

	_, err := m.AddItem(cartID, uuid.New(), usd(100), 1)
	require.NoError(t, err)

	_, err = m.AddItem(cartID, uuid.New(), eur(100), 1)
	var mismatch domain.CurrencyMismatchError
	require.ErrorAs(t, err, &mismatch)

	// after a clear the currency is unpinned
	_, err = m.Clear(cartID)
	require.NoError(t, err)

	_, err = m.AddItem(cartID, uuid.New(), eur(100), 1)
	require.NoError(t, err)
}

func TestMemory_RemoveItem(t *testing.T) {
	m := store.NewMemory()
	defer m.Close()

	cartID := gofakeit.UUID()
	productID := uuid.New()

	_, err := m.AddItem(cartID, productID, usd(500), 3)
	require.NoError(t, err)

	// partial removal decrements
	_, err = m.RemoveItem(cartID, productID, 2)
	require.NoError(t, err)

	snapshot, err := m.Snapshot(cartID)
	require.NoError(t, err)
	require.Len(t, snapshot.Lines, 1)
	assert.Equal(t, int64(1), snapshot.Lines[0].Quantity)

	// removing the rest deletes the line
	_, err = m.RemoveItem(cartID, productID, 5)
	require.NoError(t, err)

	snapshot, err = m.Snapshot(cartID)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Lines)

	// absence is an error, never a silent no-op
	_, err = m.RemoveItem(cartID, productID, 1)
	require.ErrorIs(t, err, domain.ErrLineNotFound)

	_, err = m.RemoveItem(gofakeit.UUID(), uuid.New(), 1)
	require.ErrorIs(t, err, domain.ErrLineNotFound)
}

func TestMemory_Clear_Idempotent(t *testing.T) {
	m := store.NewMemory()
	defer m.Close()

	cartID := gofakeit.UUID()

	_, err := m.AddItem(cartID, uuid.New(), usd(100), 1)
	require.NoError(t, err)

	v1, err := m.Clear(cartID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v1)

	// clearing an empty cart still bumps the version
	v2, err := m.Clear(cartID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v2)

	snapshot, err := m.Snapshot(cartID)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Lines)
	assert.Equal(t, uint64(3), snapshot.Version)
}

func TestMemory_ClearIfVersion(t *testing.T) {
	m := store.NewMemory()
	defer m.Close()

	cartID := gofakeit.UUID()

	version, err := m.AddItem(cartID, uuid.New(), usd(100), 1)
	require.NoError(t, err)

	cleared, err := m.ClearIfVersion(cartID, version+1)
	require.NoError(t, err)
	assert.False(t, cleared)

	cleared, err = m.ClearIfVersion(cartID, version)
	require.NoError(t, err)
	assert.True(t, cleared)

	snapshot, err := m.Snapshot(cartID)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Lines)

	// unknown cart is never cleared
	cleared, err = m.ClearIfVersion(gofakeit.UUID(), 1)
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestMemory_Snapshot_IsACopy(t *testing.T) {
	m := store.NewMemory()
	defer m.Close()

	cartID := gofakeit.UUID()
	productID := uuid.New()

	_, err := m.AddItem(cartID, productID, usd(100), 1)
	require.NoError(t, err)

	snapshot, err := m.Snapshot(cartID)
	require.NoError(t, err)

	// mutating the snapshot must not leak into the store
	snapshot.Lines[0].Quantity = 99

	fresh, err := m.Snapshot(cartID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.Lines[0].Quantity)
}

func TestMemory_Snapshot_UnknownCart(t *testing.T) {
	m := store.NewMemory()
	defer m.Close()

	snapshot, err := m.Snapshot(gofakeit.UUID())
	require.NoError(t, err)
	assert.True(t, snapshot.IsEmpty())
	assert.Equal(t, uint64(0), snapshot.Version)
}

// Concurrent adds on the same cart never lose an update: the final quantity
// is the sum of all individually applied quantities.
func TestMemory_AddItem_Concurrent(t *testing.T) {
	m := store.NewMemory()
	defer m.Close()

	const (
		workers = 10
		adds    = 100
	)

	cartID := gofakeit.UUID()
	productID := uuid.New()

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range adds {
				_, err := m.AddItem(cartID, productID, usd(100), 1)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	snapshot, err := m.Snapshot(cartID)
	require.NoError(t, err)

	require.Len(t, snapshot.Lines, 1)
	assert.Equal(t, int64(workers*adds), snapshot.Lines[0].Quantity)
	assert.Equal(t, uint64(workers*adds), snapshot.Version)
}

// Surviving lines always reflect the applied sequence of adds and removes.
func TestMemory_MutationSequence(t *testing.T) {
	m := store.NewMemory()
	defer m.Close()

	cartID := gofakeit.UUID()

	products := make([]uuid.UUID, 5)
	for i := range products {
		products[i] = uuid.New()
	}

	expected := make(map[uuid.UUID]int64)

	for range 200 {
		productID := products[gofakeit.Number(0, len(products)-1)]
		quantity := int64(gofakeit.Number(1, 4))

		if gofakeit.Bool() || expected[productID] == 0 {
			_, err := m.AddItem(cartID, productID, usd(int64(gofakeit.Number(100, 5000))), quantity)
			require.NoError(t, err)
			expected[productID] += quantity
			continue
		}

		_, err := m.RemoveItem(cartID, productID, quantity)
		require.NoError(t, err)

		expected[productID] -= quantity
		if expected[productID] <= 0 {
			delete(expected, productID)
		}
	}

	snapshot, err := m.Snapshot(cartID)
	require.NoError(t, err)

	actual := make(map[uuid.UUID]int64)
	for _, line := range snapshot.Lines {
		actual[line.ProductID] = line.Quantity
	}
	assert.Equal(t, expected, actual)
}

type captureSink struct {
	mu     sync.Mutex
	events []domain.CartEvent
}

func (s *captureSink) CartChanged(event domain.CartEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) snapshot() []domain.CartEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CartEvent(nil), s.events...)
}

func TestMemory_Events(t *testing.T) {
	sink := &captureSink{}

	m := store.NewMemory(store.WithEventSink(sink))
	defer m.Close()

	cartID := gofakeit.UUID()
	productID := uuid.New()

	_, err := m.AddItem(cartID, productID, usd(100), 1)
	require.NoError(t, err)

	_, err = m.RemoveItem(cartID, productID, 1)
	require.NoError(t, err)

	_, err = m.Clear(cartID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 3
	}, time.Second, 10*time.Millisecond)

	events := sink.snapshot()
	assert.Equal(t, domain.CartEvent{CartID: cartID, Version: 1, Kind: domain.EventAdded}, events[0])
	assert.Equal(t, domain.CartEvent{CartID: cartID, Version: 2, Kind: domain.EventRemoved}, events[1])
	assert.Equal(t, domain.CartEvent{CartID: cartID, Version: 3, Kind: domain.EventCleared}, events[2])
}

// blockingSink stalls in CartChanged until released.
type blockingSink struct {
	release   chan struct{}
	once      sync.Once
	delivered atomic.Int64
}

func newBlockingSink() *blockingSink {
	return &blockingSink{release: make(chan struct{})}
}

func (s *blockingSink) CartChanged(domain.CartEvent) {
	<-s.release
	s.delivered.Add(1)
}

func (s *blockingSink) unblock() {
	s.once.Do(func() { close(s.release) })
}

// A stalled sink and a full buffer must not block mutations; excess events
// are dropped.
func TestMemory_Events_NeverBlockMutations(t *testing.T) {
	sink := newBlockingSink()

	m := store.NewMemory(store.WithEventSink(sink), store.WithEventBuffer(1))
	defer m.Close()
	defer sink.unblock()

	cartID := gofakeit.UUID()

	const adds = 10

	start := time.Now()
	for range adds {
		_, err := m.AddItem(cartID, uuid.New(), usd(100), 1)
		require.NoError(t, err)
	}
	require.Less(t, time.Since(start), time.Second)

	sink.unblock()

	// at most one in-flight and one buffered event survive the stall
	require.Eventually(t, func() bool {
		return sink.delivered.Load() >= 1
	}, time.Second, 10*time.Millisecond)
	assert.LessOrEqual(t, sink.delivered.Load(), int64(2))
}

func TestMemory_Finalize(t *testing.T) {
	m := store.NewMemory()
	defer m.Close()

	cartID := gofakeit.UUID()

	version, err := m.AddItem(cartID, uuid.New(), usd(100), 2)
	require.NoError(t, err)

	order, err := m.Finalize(cartID, version, func(snapshot domain.CartSnapshot) (domain.Order, error) {
		require.Len(t, snapshot.Lines, 1)
		return domain.Order{ID: uuid.New(), CartID: snapshot.CartID, SourceCartVersion: snapshot.Version}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, version, order.SourceCartVersion)

	// stale version is a conflict
	_, err = m.Finalize(cartID, version+1, func(domain.CartSnapshot) (domain.Order, error) {
		t.Fatal("build must not run on version mismatch")
		return domain.Order{}, nil
	})
	require.ErrorIs(t, err, domain.ErrConcurrentModification)

	// unknown cart is a conflict too
	_, err = m.Finalize(gofakeit.UUID(), 1, func(domain.CartSnapshot) (domain.Order, error) {
		return domain.Order{}, nil
	})
	require.ErrorIs(t, err, domain.ErrConcurrentModification)
}

package checkout_test

import (
	"context"
	"sync"
	"time"

	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/cart"
	"github.com/blacknight/storefront/internal/domain"
)

type fakeBackend struct {
	mu           sync.Mutex
	createErr    error
	session      domain.ReservationSession
	reservation  *domain.Reservation
	getErr       error
	payURL       string
	payErr       error
	creates      int
	gets         int
	payments     int
	lastItems    []domain.CartItem
	paymentGate  chan struct{}
	paymentEnter chan struct{}
}

func (f *fakeBackend) CreateReservation(_ context.Context, _ int, items []domain.CartItem) (domain.ReservationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.lastItems = items
	return f.session, f.createErr
}

func (f *fakeBackend) GetReservation(_ context.Context, token string) (*domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	r := *f.reservation
	return &r, nil
}

func (f *fakeBackend) CreatePayment(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	f.payments++
	gate, enter := f.paymentGate, f.paymentEnter
	url, err := f.payURL, f.payErr
	f.mu.Unlock()
	if enter != nil {
		enter <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return url, err
}

func (f *fakeBackend) counts() (creates, gets, payments int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.gets, f.payments
}

type memTokens struct {
	mu   sync.Mutex
	data map[string]domain.ReservationSession
}

func newTokens() *memTokens { return &memTokens{data: map[string]domain.ReservationSession{}} }

func (m *memTokens) Save(_ context.Context, sid string, rs domain.ReservationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[sid] = rs
	return nil
}

func (m *memTokens) Load(_ context.Context, sid string) (domain.ReservationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.data[sid]
	if !ok {
		return domain.ReservationSession{}, domain.ErrNoReservation
	}
	return rs, nil
}

func (m *memTokens) Discard(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sid)
	return nil
}

func (m *memTokens) has(sid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[sid]
	return ok
}

type memGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func newGuard() *memGuard { return &memGuard{held: map[string]bool{}} }

func (g *memGuard) Acquire(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] {
		return false, nil
	}
	g.held[key] = true
	return true, nil
}

func (g *memGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
	return nil
}

func (g *memGuard) isHeld(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held[key]
}

type recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorder) Publish(_ context.Context, key string, _ interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

func (r *recorder) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

type memCarts struct{ carts map[string]cart.Cart }

func (m *memCarts) Load(_ context.Context, sid string) (cart.Cart, error) { return m.carts[sid], nil }
func (m *memCarts) Save(_ context.Context, sid string, c cart.Cart) error {
	m.carts[sid] = c
	return nil
}
func (m *memCarts) Delete(_ context.Context, sid string) error {
	delete(m.carts, sid)
	return nil
}

var (
	errNetwork  = &backend.Error{Op: "test", Kind: backend.KindNetwork}
	errNotFound = &backend.Error{Op: "test", Kind: backend.KindNotFound, Status: 404, Message: "Reservation not found"}
	errConflict = &backend.Error{Op: "test", Kind: backend.KindConflict, Status: 409, Message: "Payment already being processed"}
)

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

package checkout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/cart"
	"github.com/blacknight/storefront/internal/checkout"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/blacknight/storefront/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sid = "visitor-1"

type harness struct {
	api    *fakeBackend
	tokens *memTokens
	guard  *memGuard
	events *recorder
	clock  *clockwork.FakeClock
	svc    *checkout.Service
}

func newHarness(refreshEvery int) *harness {
	h := &harness{
		api:    &fakeBackend{},
		tokens: newTokens(),
		guard:  newGuard(),
		events: &recorder{},
		clock:  clockwork.NewFakeClockAt(t0),
	}
	h.svc = checkout.NewService(h.api, h.tokens, h.guard, h.events, h.clock, observability.NewNopLogger(), refreshEvery)
	return h
}

func (h *harness) withReservation(token string, ttl time.Duration) {
	h.tokens.data[sid] = domain.ReservationSession{Token: token, ExpiresAt: t0.Add(ttl)}
	h.api.reservation = &domain.Reservation{
		ID:        1,
		Token:     token,
		ExpiresAt: t0.Add(ttl),
		Event:     domain.Event{ID: 7, Title: "Night", ServiceFeePercent: 10},
		Lines:     []domain.ReservationLine{{TicketTypeID: 1, Name: "General", Quantity: 2, Price: 500, Subtotal: 1000}},
		Subtotal:  1000,
	}
}

func intp(n int) *int { return &n }

func openCart(t *testing.T, eventID int, items ...domain.CartItem) *cart.Store {
	t.Helper()
	p := &memCarts{carts: map[string]cart.Cart{}}
	s, err := cart.Open(context.Background(), p, sid)
	require.NoError(t, err)
	require.NoError(t, s.ForEvent(context.Background(), eventID))
	for _, it := range items {
		require.NoError(t, s.SetQuantity(context.Background(), it.TicketTypeID, it.Name, it.Price, it.Quantity))
	}
	return s
}

func TestReserve_EmptyCartFailsFast(t *testing.T) {
	h := newHarness(0)
	store := openCart(t, 7)

	_, err := h.svc.Reserve(context.Background(), sid, domain.Event{ID: 7}, store)
	assert.True(t, errors.Is(err, domain.ErrCartEmpty))
	creates, _, _ := h.api.counts()
	assert.Zero(t, creates)
}

func TestReserve_OverCapFailsFast(t *testing.T) {
	h := newHarness(0)
	store := openCart(t, 7, domain.CartItem{TicketTypeID: 1, Name: "A", Price: 100, Quantity: 5})

	_, err := h.svc.Reserve(context.Background(), sid, domain.Event{ID: 7, MaxTicketsPerUser: intp(4)}, store)
	assert.True(t, errors.Is(err, domain.ErrOverLimit))
	creates, _, _ := h.api.counts()
	assert.Zero(t, creates)
}

func TestReserve_StoresTokenAndPublishes(t *testing.T) {
	h := newHarness(0)
	h.api.session = domain.ReservationSession{Token: "tok-1", ExpiresAt: t0.Add(10 * time.Minute)}
	store := openCart(t, 7,
		domain.CartItem{TicketTypeID: 1, Name: "A", Price: 100, Quantity: 2},
		domain.CartItem{TicketTypeID: 2, Name: "B", Price: 300, Quantity: 1},
	)

	rs, err := h.svc.Reserve(context.Background(), sid, domain.Event{ID: 7, MaxTicketsPerUser: intp(4)}, store)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", rs.Token)
	assert.True(t, h.tokens.has(sid))
	assert.Len(t, h.api.lastItems, 2)
	assert.Equal(t, []string{checkout.EventReservationCreated}, h.events.published())
}

func TestReserve_BackendRejectionIsRetryable(t *testing.T) {
	h := newHarness(0)
	h.api.createErr = &backend.Error{Kind: backend.KindRejected, Status: 400, Message: "Not enough stock"}
	store := openCart(t, 7, domain.CartItem{TicketTypeID: 1, Name: "A", Price: 100, Quantity: 1})

	_, err := h.svc.Reserve(context.Background(), sid, domain.Event{ID: 7}, store)
	require.Error(t, err)
	assert.Equal(t, "Not enough stock", backend.UserMessage(err, "x"))
	assert.False(t, h.tokens.has(sid))

	h.api.createErr = nil
	h.api.session = domain.ReservationSession{Token: "tok-2", ExpiresAt: t0.Add(time.Minute)}
	_, err = h.svc.Reserve(context.Background(), sid, domain.Event{ID: 7}, store)
	require.NoError(t, err)
}

func TestResume_NoToken(t *testing.T) {
	h := newHarness(0)
	_, err := h.svc.Resume(context.Background(), sid)
	assert.True(t, errors.Is(err, domain.ErrNoReservation))
}

func TestResume_ComputesTotals(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", 90*time.Second)

	f, err := h.svc.Resume(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateActive, f.State())
	assert.Equal(t, int64(100), f.ServiceFee)
	assert.Equal(t, int64(1100), f.Total)
	assert.Equal(t, 90, f.Countdown.Remaining())
}

func TestResume_GoneReservationExpires(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", time.Minute)
	h.api.getErr = errNotFound

	f, err := h.svc.Resume(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateExpired, f.State())
	assert.Nil(t, f.Reservation)
	assert.False(t, h.tokens.has(sid))
	assert.Contains(t, h.events.published(), checkout.EventReservationExpired)
}

func TestResume_ElapsedReservationExpires(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", time.Minute)
	h.clock.Advance(2 * time.Minute)

	f, err := h.svc.Resume(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateExpired, f.State())
	assert.Equal(t, 0, f.Countdown.Remaining())
	assert.False(t, h.tokens.has(sid))
}

func TestResume_NetworkFailureGoesToLanding(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", time.Minute)
	h.api.getErr = errNetwork

	_, err := h.svc.Resume(context.Background(), sid)
	assert.True(t, errors.Is(err, domain.ErrNoReservation))
	assert.True(t, h.tokens.has(sid))
}

func TestPay_SecondCallWhileInFlightIsNoop(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", time.Minute)
	h.api.payURL = "https://pay.example/1"
	h.api.paymentGate = make(chan struct{})
	h.api.paymentEnter = make(chan struct{}, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstURL string
	var firstErr error
	go func() {
		defer wg.Done()
		firstURL, firstErr = h.svc.Pay(context.Background(), sid)
	}()
	<-h.api.paymentEnter

	_, err := h.svc.Pay(context.Background(), sid)
	assert.True(t, errors.Is(err, domain.ErrPaymentInFlight))

	close(h.api.paymentGate)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, "https://pay.example/1", firstURL)

	_, _, payments := h.api.counts()
	assert.Equal(t, 1, payments)
	assert.Contains(t, h.events.published(), checkout.EventPaymentInitiated)
}

func TestPay_ConflictKeepsTriggerDisabled(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", time.Minute)
	h.api.payErr = errConflict

	_, err := h.svc.Pay(context.Background(), sid)
	assert.True(t, errors.Is(err, domain.ErrPaymentInFlight))
	assert.Equal(t, "Payment already being processed", backend.ServerMessage(err))
	assert.True(t, h.guard.isHeld("tok-1"))

	_, err = h.svc.Pay(context.Background(), sid)
	assert.True(t, errors.Is(err, domain.ErrPaymentInFlight))
	_, _, payments := h.api.counts()
	assert.Equal(t, 1, payments)
}

func TestPay_NetworkFailureReleasesTrigger(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", time.Minute)
	h.api.payErr = errNetwork

	_, err := h.svc.Pay(context.Background(), sid)
	assert.Equal(t, backend.KindNetwork, backend.KindOf(err))
	assert.False(t, h.guard.isHeld("tok-1"))

	h.api.payErr = nil
	h.api.payURL = "https://pay.example/2"
	u, err := h.svc.Pay(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/2", u)
}

func TestPay_MissingRedirect(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", time.Minute)

	_, err := h.svc.Pay(context.Background(), sid)
	assert.True(t, errors.Is(err, domain.ErrMissingPaymentRedirect))
	assert.False(t, h.guard.isHeld("tok-1"))
}

func TestPay_ExpiredReservationNeverReachesBackend(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", time.Minute)
	h.clock.Advance(time.Minute)

	_, err := h.svc.Pay(context.Background(), sid)
	assert.True(t, errors.Is(err, domain.ErrReservationExpired))
	assert.False(t, h.tokens.has(sid))
	_, _, payments := h.api.counts()
	assert.Zero(t, payments)
}

func TestCancel(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", time.Minute)

	require.NoError(t, h.svc.Cancel(context.Background(), sid))
	assert.False(t, h.tokens.has(sid))
	assert.Equal(t, []string{checkout.EventReservationCancelled}, h.events.published())
	require.NoError(t, h.svc.Cancel(context.Background(), sid))
}

func TestSettle(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", time.Minute)
	assert.Equal(t, checkout.StateApproved, h.svc.Settle(context.Background(), sid, checkout.SettleApproved))
	assert.True(t, h.tokens.has(sid))
	assert.Equal(t, "tok-1", h.svc.Token(context.Background(), sid))

	assert.Equal(t, checkout.StateUnresolved, h.svc.Settle(context.Background(), sid, checkout.SettleUnresolved))
	assert.False(t, h.tokens.has(sid))
	assert.Equal(t, checkout.StateRejected, h.svc.Settle(context.Background(), sid, checkout.SettleRejected))
}

type tickLog struct {
	mu   sync.Mutex
	vals []int
}

func (l *tickLog) add(n int) {
	l.mu.Lock()
	l.vals = append(l.vals, n)
	l.mu.Unlock()
}

func (l *tickLog) get() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.vals...)
}

func watch(h *harness, ctx context.Context, log *tickLog) chan error {
	done := make(chan error, 1)
	go func() { done <- h.svc.Watch(ctx, sid, log.add) }()
	return done
}

func (h *harness) waitForTicker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
}

// tick advances one second and waits until Watch has reported want values.
func (h *harness) tick(t *testing.T, log *tickLog, want int) {
	t.Helper()
	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(log.get()) >= want }, time.Second, time.Millisecond)
}

func (h *harness) assertNoTicker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, h.clock.BlockUntilContext(ctx, 1))
}

func TestWatch_CountsDownToZeroThenExpires(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", 3*time.Second)
	log := &tickLog{}

	done := watch(h, context.Background(), log)
	h.waitForTicker(t)
	require.Eventually(t, func() bool { return len(log.get()) == 1 }, time.Second, time.Millisecond)
	for i := 2; i <= 4; i++ {
		h.tick(t, log, i)
	}

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, domain.ErrReservationExpired))
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not finish")
	}
	assert.Equal(t, []int{3, 2, 1, 0}, log.get())
	assert.False(t, h.tokens.has(sid))
	h.assertNoTicker(t)
}

func TestWatch_CancelStopsTicker(t *testing.T) {
	h := newHarness(0)
	h.withReservation("tok-1", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := watch(h, ctx, &tickLog{})
	h.waitForTicker(t)
	cancel()

	assert.True(t, errors.Is(<-done, context.Canceled))
	h.assertNoTicker(t)
	assert.True(t, h.tokens.has(sid))
}

func TestWatch_ServerAnswerShortensCountdown(t *testing.T) {
	h := newHarness(1)
	h.withReservation("tok-1", time.Minute)
	h.api.reservation.ExpiresAt = t0.Add(5 * time.Second)
	log := &tickLog{}

	done := watch(h, context.Background(), log)
	h.waitForTicker(t)

	var err error
	for i := 0; i < 20 && err == nil; i++ {
		h.clock.Advance(time.Second)
		select {
		case err = <-done:
		case <-time.After(20 * time.Millisecond):
		}
	}
	assert.True(t, errors.Is(err, domain.ErrReservationExpired))

	vals := log.get()
	require.NotEmpty(t, vals)
	assert.Equal(t, 0, vals[len(vals)-1])
	for i := 1; i < len(vals); i++ {
		assert.LessOrEqual(t, vals[i], vals[i-1])
	}
	assert.Less(t, len(vals), 20)
}

func TestWatch_ReservationGoneExpiresAtZero(t *testing.T) {
	h := newHarness(1)
	h.withReservation("tok-1", time.Minute)
	h.api.getErr = errNotFound
	log := &tickLog{}

	done := watch(h, context.Background(), log)
	h.waitForTicker(t)
	h.clock.Advance(time.Second)

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, domain.ErrReservationExpired))
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not finish")
	}
	vals := log.get()
	assert.Equal(t, []int{60, 59, 0}, vals)
	assert.False(t, h.tokens.has(sid))
}

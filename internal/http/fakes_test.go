package http

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/blacknight/storefront/internal/admin"
	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/cart"
	"github.com/blacknight/storefront/internal/checkout"
	"github.com/blacknight/storefront/internal/config"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/blacknight/storefront/internal/observability"
	"github.com/blacknight/storefront/internal/payment"
	"github.com/blacknight/storefront/internal/rateLimit"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func testEvent() domain.Event {
	return domain.Event{
		ID:                1,
		Title:             "Night Shift",
		Status:            backend.StatusPublished,
		StartAt:           time.Date(2026, 12, 5, 23, 0, 0, 0, time.UTC),
		Featured:          true,
		MaxTicketsPerUser: intPtr(2),
		ServiceFeePercent: 10,
		TicketTypes: []domain.TicketTypeView{
			{ID: 10, Name: "General", Price: 15000, Stock: 50, Active: true, Order: 1},
			{ID: 11, Name: "VIP", Price: 40000, Stock: 0, Active: true, Order: 2},
		},
	}
}

// fakeAPI stands in for every backend surface the handlers reach.
type fakeAPI struct {
	mu        sync.Mutex
	event     domain.Event
	user      *domain.User
	loginErr  error
	adminErr  error
	payURL    string
	payStatus domain.PaymentStatus
	tickets   []domain.Ticket
	expiresAt time.Time
	payments  int
	created   []domain.CartItem
	confirms  int
	listed    int
}

func (f *fakeAPI) ticketCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirms + f.listed
}

func (f *fakeAPI) ListEvents(context.Context) ([]domain.Event, error) {
	return []domain.Event{f.event}, nil
}

func (f *fakeAPI) GetEvent(_ context.Context, id int) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.event.ID {
		return nil, &backend.Error{Op: "event", Kind: backend.KindNotFound, Status: 404, Message: "Event not found"}
	}
	ev := f.event
	ev.TicketTypes = append([]domain.TicketTypeView(nil), f.event.TicketTypes...)
	return &ev, nil
}

// editEvent changes the event the backend serves from now on.
func (f *fakeAPI) editEvent(fn func(*domain.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.event)
}

func (f *fakeAPI) Me(ctx context.Context) (*domain.User, error) {
	if backend.CredentialsFrom(ctx) == "" {
		return nil, nil
	}
	return f.user, nil
}

func (f *fakeAPI) Login(_ context.Context, email, _ string) (*http.Cookie, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &http.Cookie{Name: backend.SessionCookie, Value: "session-for-" + email}, nil
}

func (f *fakeAPI) Logout(context.Context) error { return nil }

func (f *fakeAPI) Register(context.Context, backend.Registration) error { return nil }

func (f *fakeAPI) MyTickets(context.Context) ([]domain.Ticket, *domain.Event, error) {
	f.mu.Lock()
	f.listed++
	f.mu.Unlock()
	ev := f.event
	return append([]domain.Ticket(nil), f.tickets...), &ev, nil
}

func (f *fakeAPI) QRCode(_ context.Context, code string) ([]byte, string, error) {
	return []byte("png:" + code), "image/png", nil
}

func (f *fakeAPI) CreateReservation(_ context.Context, _ int, items []domain.CartItem) (domain.ReservationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = items
	return domain.ReservationSession{Token: "res-token", ExpiresAt: f.expiresAt}, nil
}

func (f *fakeAPI) GetReservation(_ context.Context, token string) (*domain.Reservation, error) {
	return &domain.Reservation{
		ID:        7,
		Token:     token,
		ExpiresAt: f.expiresAt,
		Event:     f.event,
		Lines:     []domain.ReservationLine{{TicketTypeID: 10, Name: "General", Quantity: 2, Price: 15000, Subtotal: 30000}},
		Subtotal:  30000,
	}, nil
}

func (f *fakeAPI) CreatePayment(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments++
	return f.payURL, nil
}

func (f *fakeAPI) PaymentStatus(context.Context, string) (domain.PaymentStatus, error) {
	return f.payStatus, nil
}

func (f *fakeAPI) ConfirmReservation(context.Context, string) (*domain.Event, []domain.Ticket, error) {
	f.mu.Lock()
	f.confirms++
	f.mu.Unlock()
	ev := f.event
	return &ev, append([]domain.Ticket(nil), f.tickets...), nil
}

func (f *fakeAPI) AdminEvents(context.Context) ([]domain.Event, error) {
	if f.adminErr != nil {
		return nil, f.adminErr
	}
	return []domain.Event{f.event}, nil
}

func (f *fakeAPI) CreateEvent(context.Context, backend.EventPayload) error { return f.adminErr }

func (f *fakeAPI) UpdateEvent(context.Context, int, backend.EventPayload) error { return f.adminErr }

func (f *fakeAPI) SetEventStatus(context.Context, int, string) error { return f.adminErr }

func (f *fakeAPI) DeleteEvent(context.Context, int) error { return f.adminErr }

func (f *fakeAPI) Organizers(context.Context) ([]domain.Organizer, error) {
	return []domain.Organizer{{ID: 1, Name: "Blacknight Events", Email: "ops@blacknight.test"}}, nil
}

type memCarts struct {
	mu    sync.Mutex
	carts map[string]cart.Cart
}

func (m *memCarts) Load(_ context.Context, sid string) (cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[sid]
	c.Items = append([]domain.CartItem(nil), c.Items...)
	return c, nil
}

func (m *memCarts) Save(_ context.Context, sid string, c cart.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Items = append([]domain.CartItem(nil), c.Items...)
	m.carts[sid] = c
	return nil
}

func (m *memCarts) Delete(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, sid)
	return nil
}

func (m *memCarts) only() cart.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		return c
	}
	return cart.Cart{}
}

type memTokens struct {
	mu   sync.Mutex
	data map[string]domain.ReservationSession
}

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

func (m *memTokens) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

type memGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

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

func (g *memGuard) Held(_ context.Context, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held[key]
}

type allowAll struct{ deny bool }

func (a allowAll) Allow(context.Context, rateLimit.Rule, string) bool { return !a.deny }

type nopEvents struct{}

func (nopEvents) Publish(context.Context, string, interface{}) error { return nil }

type harness struct {
	api    *fakeAPI
	carts  *memCarts
	tokens *memTokens
	guard  *memGuard
	srv    *httptest.Server
	client *http.Client
	now    time.Time
}

type option func(*Deps)

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	now := time.Now()
	h := &harness{
		api: &fakeAPI{
			event:     testEvent(),
			user:      &domain.User{ID: 3, FirstName: "Ada", Email: "ada@example.com", Role: "USER"},
			payURL:    "https://pay.example/checkout/abc",
			payStatus: domain.PaymentApproved,
			tickets:   []domain.Ticket{{ID: 1, Code: "TKT-1"}, {ID: 2, Code: "TKT-2"}},
			expiresAt: now.Add(10 * time.Minute),
		},
		carts:  &memCarts{carts: map[string]cart.Cart{}},
		tokens: &memTokens{data: map[string]domain.ReservationSession{}},
		guard:  &memGuard{held: map[string]bool{}},
		now:    now,
	}

	logger := observability.NewNopLogger()
	rd, err := NewRenderer()
	require.NoError(t, err)

	d := Deps{
		Config:   &config.Config{},
		Logger:   logger,
		Backend:  h.api,
		Carts:    h.carts,
		Checkout: checkout.NewService(h.api, h.tokens, h.guard, nopEvents{}, clockwork.NewRealClock(), logger, 15),
		PayFlag:  h.guard,
		Poller:   payment.NewPoller(h.api, clockwork.NewRealClock(), time.Millisecond, 3, logger),
		Tickets:  payment.NewTicketLoader(h.api, logger),
		Console:  admin.NewConsole(h.api, admin.NopAuditor{}, logger),
		Limiter:  allowAll{},
		Sessions: sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")),
		Renderer: rd,
		Now:      func() time.Time { return now },
	}
	for _, o := range opts {
		o(&d)
	}

	h.srv = httptest.NewServer(SetupRouter(NewHandlers(d)))
	t.Cleanup(h.srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	h.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return h
}

func (h *harness) loginAs(t *testing.T, role string) {
	t.Helper()
	tok := signToken(t, Claims{
		UserID:           3,
		Email:            "ada@example.com",
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(h.now.Add(time.Hour))},
	})
	u, _ := url.Parse(h.srv.URL)
	h.client.Jar.SetCookies(u, []*http.Cookie{{Name: backend.SessionCookie, Value: tok, Path: "/"}})
}

func signToken(t *testing.T, c Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("not-our-secret"))
	require.NoError(t, err)
	return s
}

func (h *harness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.Get(h.srv.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (h *harness) post(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := h.client.PostForm(h.srv.URL+path, form)
	require.NoError(t, err)
	readBody(t, resp)
	return resp
}

package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	mongoadapter "github.com/blacknight/storefront/internal/adapters/mongo"
	"github.com/blacknight/storefront/internal/admin"
	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/cart"
	"github.com/blacknight/storefront/internal/checkout"
	"github.com/blacknight/storefront/internal/config"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/blacknight/storefront/internal/observability"
	"github.com/blacknight/storefront/internal/payment"
	"github.com/blacknight/storefront/internal/rateLimit"
	"github.com/gorilla/sessions"
)

// Backend is the part of the ticketing API the storefront pages call directly.
type Backend interface {
	ListEvents(ctx context.Context) ([]domain.Event, error)
	GetEvent(ctx context.Context, id int) (*domain.Event, error)
	Me(ctx context.Context) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*http.Cookie, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, r backend.Registration) error
	MyTickets(ctx context.Context) ([]domain.Ticket, *domain.Event, error)
	QRCode(ctx context.Context, code string) ([]byte, string, error)
}

type PayFlag interface {
	Held(ctx context.Context, key string) bool
}

type Limiter interface {
	Allow(ctx context.Context, rule rateLimit.Rule, subject string) bool
}

type ActivityReader interface {
	Recent(ctx context.Context, action string, limit int64) ([]mongoadapter.AuditLog, error)
}

type Deps struct {
	Config   *config.Config
	Logger   observability.Logger
	Backend  Backend
	Carts    cart.Persister
	Checkout *checkout.Service
	PayFlag  PayFlag
	Poller   *payment.Poller
	Tickets  *payment.TicketLoader
	Console  *admin.Console
	Activity ActivityReader
	Limiter  Limiter
	Sessions sessions.Store
	Renderer *Renderer
	Ready    func(ctx context.Context) error
	Now      func() time.Time
}

type Handlers struct {
	cfg      *config.Config
	logger   observability.Logger
	api      Backend
	carts    cart.Persister
	checkout *checkout.Service
	payFlag  PayFlag
	poller   *payment.Poller
	tickets  *payment.TicketLoader
	console  *admin.Console
	activity ActivityReader
	limiter  Limiter
	sessions sessions.Store
	render   *Renderer
	ready    func(ctx context.Context) error
	now      func() time.Time
}

func NewHandlers(d Deps) *Handlers {
	h := &Handlers{
		cfg:      d.Config,
		logger:   d.Logger,
		api:      d.Backend,
		carts:    d.Carts,
		checkout: d.Checkout,
		payFlag:  d.PayFlag,
		poller:   d.Poller,
		tickets:  d.Tickets,
		console:  d.Console,
		activity: d.Activity,
		limiter:  d.Limiter,
		sessions: d.Sessions,
		render:   d.Renderer,
		ready:    d.Ready,
		now:      d.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.ready == nil {
		h.ready = func(context.Context) error { return nil }
	}
	return h
}

func (h *Handlers) log(r *http.Request) observability.Logger {
	return LoggerFrom(r.Context(), h.logger)
}

func (h *Handlers) page(w http.ResponseWriter, r *http.Request, status int, page, title string, user *domain.User, data interface{}) {
	v := View{Title: title, User: user, Flash: h.flashes(w, r), Data: data}
	if err := h.render.HTML(w, status, page, v); err != nil {
		h.log(r).WithError(err).Error("render page")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// fail renders the error page for err, mapping backend kinds to statuses.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, user *domain.User, err error, fallback string) {
	status := http.StatusInternalServerError
	switch backend.KindOf(err) {
	case backend.KindNotFound:
		status = http.StatusNotFound
	case backend.KindForbidden:
		status = http.StatusForbidden
	case backend.KindNetwork, backend.KindServer:
		status = http.StatusBadGateway
	case backend.KindUnauthorized:
		http.Redirect(w, r, loginURL(r.URL.RequestURI()), http.StatusSeeOther)
		return
	}
	if status >= 500 {
		h.log(r).WithError(err).Error(fallback)
	}
	h.page(w, r, status, "error", "Something went wrong", user, backend.UserMessage(err, fallback))
}

func (h *Handlers) flash(w http.ResponseWriter, r *http.Request, msg string) {
	sess, _ := h.sessions.Get(r, sessionName)
	sess.AddFlash(msg)
	if err := sess.Save(r, w); err != nil {
		h.log(r).WithError(err).Warn("save flash")
	}
}

func (h *Handlers) flashes(w http.ResponseWriter, r *http.Request) []string {
	sess, _ := h.sessions.Get(r, sessionName)
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := sess.Save(r, w); err != nil {
		h.log(r).WithError(err).Warn("save session")
	}
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (h *Handlers) openCart(r *http.Request) (*cart.Store, error) {
	return cart.Open(r.Context(), h.carts, VisitorFrom(r.Context()))
}

// user returns the logged-in user; backend trouble counts as anonymous.
func (h *Handlers) user(r *http.Request) *domain.User {
	u, err := h.api.Me(r.Context())
	if err != nil {
		h.log(r).WithError(err).Debug("session lookup failed")
		return nil
	}
	return u
}

func loginURL(next string) string {
	return "/login?next=" + url.QueryEscape(next)
}

// safeNext only allows local redirects.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.ready(ctx); err != nil {
		h.log(r).WithError(err).Warn("not ready")
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

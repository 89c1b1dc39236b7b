package http

import (
	"net/http"
	"strings"

	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/blacknight/storefront/internal/payment"
	"github.com/blacknight/storefront/internal/rateLimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const (
	msgBadCredentials = "Invalid email or password."
	msgLoginFailed    = "We could not log you in. Please try again."
	msgRegisterFailed = "We could not create your account. Please try again."
	msgRegistered     = "Your account was created. You can log in now."
)

var formValidate = validator.New()

type loginData struct {
	Email string
	Next  string
	Error string
}

func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if u := h.user(r); u != nil {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	h.page(w, r, http.StatusOK, "login", "Log in", nil, loginData{Next: next})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	next := safeNext(r.PostFormValue("next"))
	d := loginData{Email: email, Next: next}

	if !h.limiter.Allow(r.Context(), rateLimit.Login, clientIP(r)) {
		d.Error = msgTooMany
		h.page(w, r, http.StatusTooManyRequests, "login", "Log in", nil, d)
		return
	}

	cookie, err := h.api.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		status := http.StatusUnauthorized
		d.Error = msgBadCredentials
		if !backend.IsKind(err, backend.KindUnauthorized) && !backend.IsKind(err, backend.KindRejected) {
			status = http.StatusBadGateway
			d.Error = backend.UserMessage(err, msgLoginFailed)
		}
		h.page(w, r, status, "login", "Log in", nil, d)
		return
	}

	http.SetCookie(w, h.sessionCookie(cookie))
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// sessionCookie re-issues the backend session cookie on the storefront's origin.
func (h *Handlers) sessionCookie(from *http.Cookie) *http.Cookie {
	return &http.Cookie{
		Name:     backend.SessionCookie,
		Value:    from.Value,
		Path:     "/",
		Expires:  from.Expires,
		MaxAge:   from.MaxAge,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.api.Logout(r.Context()); err != nil {
		h.log(r).WithError(err).Info("backend logout failed")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     backend.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type registerForm struct {
	FirstName string `validate:"required,max=80"`
	LastName  string `validate:"required,max=80"`
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=8,max=128"`
	Confirm   string `validate:"eqfield=Password"`
}

var registerMessages = map[string]string{
	"FirstName": "First name is required.",
	"LastName":  "Last name is required.",
	"Email":     "Enter a valid email address.",
	"Password":  "The password must have at least 8 characters.",
	"Confirm":   "The passwords do not match.",
}

type registerData struct {
	Form   registerForm
	Errors []string
}

func (h *Handlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, http.StatusOK, "register", "Create account", nil, registerData{})
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	f := registerForm{
		FirstName: strings.TrimSpace(r.PostFormValue("first_name")),
		LastName:  strings.TrimSpace(r.PostFormValue("last_name")),
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		Password:  r.PostFormValue("password"),
		Confirm:   r.PostFormValue("confirm"),
	}
	d := registerData{Form: f}
	d.Form.Password, d.Form.Confirm = "", ""

	if err := formValidate.Struct(f); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ve {
				d.Errors = append(d.Errors, registerMessages[fe.Field()])
			}
		}
		h.page(w, r, http.StatusUnprocessableEntity, "register", "Create account", nil, d)
		return
	}

	err := h.api.Register(r.Context(), backend.Registration{
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Email:     f.Email,
		Password:  f.Password,
	})
	if err != nil {
		d.Errors = []string{backend.UserMessage(err, msgRegisterFailed)}
		h.page(w, r, http.StatusUnprocessableEntity, "register", "Create account", nil, d)
		return
	}
	h.flash(w, r, msgRegistered)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type profileData struct {
	Event   *domain.Event
	Tickets []domain.Ticket
	Error   string
}

func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	user := h.user(r)
	if user == nil {
		http.Redirect(w, r, loginURL("/profile"), http.StatusSeeOther)
		return
	}
	var d profileData
	tickets, ev, err := h.api.MyTickets(r.Context())
	if err != nil {
		d.Error = backend.UserMessage(err, "We could not load your tickets.")
	}
	for i := range tickets {
		tickets[i].QRPath = payment.QRPath(tickets[i].Code)
	}
	d.Event, d.Tickets = ev, tickets
	h.page(w, r, http.StatusOK, "profile", "My tickets", user, d)
}

// TicketQR proxies the backend QR image so the session cookie never leaves
// the storefront origin.
func (h *Handlers) TicketQR(w http.ResponseWriter, r *http.Request) {
	img, contentType, err := h.api.QRCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		switch backend.KindOf(err) {
		case backend.KindNotFound:
			http.NotFound(w, r)
		case backend.KindUnauthorized, backend.KindForbidden:
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.log(r).WithError(err).Warn("load qr code")
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		}
		return
	}
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Write(img)
}

package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/checkout"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/blacknight/storefront/internal/payment"
	"github.com/cockroachdb/errors"
)

const (
	msgExpired        = "Your reservation expired. The tickets were released."
	msgCancelled      = "Your reservation was cancelled."
	msgPayInFlight    = "Your payment is already being processed."
	msgPayFailed      = "We could not start the payment. Please try again."
	msgNoRedirect     = "The payment provider did not return a checkout page. Please try again."
	msgNoReservation  = "You have no active reservation."
	msgTicketsMissing = "Your payment was approved, but we could not load your tickets yet. You will find them in your profile."
)

type checkoutData struct {
	Flow    *checkout.Flow
	Paying  bool
	Expired bool
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	user := h.user(r)
	if user == nil {
		http.Redirect(w, r, loginURL("/checkout"), http.StatusSeeOther)
		return
	}
	sid := VisitorFrom(r.Context())
	flow, err := h.checkout.Resume(r.Context(), sid)
	if errors.Is(err, domain.ErrNoReservation) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		h.fail(w, r, user, err, "We could not load your reservation.")
		return
	}

	d := checkoutData{Flow: flow, Expired: flow.State() == checkout.StateExpired}
	if !d.Expired {
		d.Paying = h.payFlag.Held(r.Context(), flow.Reservation.Token)
	}
	h.page(w, r, http.StatusOK, "checkout", "Checkout", user, d)
}

// Countdown streams the remaining reservation seconds as server-sent events.
func (h *Handlers) Countdown(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.log(r).WithError(err).Warn("clear write deadline")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event string, data string) {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		_ = rc.Flush()
	}

	err := h.checkout.Watch(r.Context(), VisitorFrom(r.Context()), func(remaining int) {
		send("tick", fmt.Sprintf(`{"remaining":%d,"clock":%q}`, remaining, checkout.Clock(remaining)))
	})
	switch {
	case errors.Is(err, domain.ErrReservationExpired):
		send("expired", `{"redirect":"/"}`)
	case errors.Is(err, domain.ErrNoReservation):
		send("gone", `{"redirect":"/"}`)
	case err != nil && r.Context().Err() == nil:
		h.log(r).WithError(err).Warn("countdown stream ended")
	}
}

func (h *Handlers) Pay(w http.ResponseWriter, r *http.Request) {
	sid := VisitorFrom(r.Context())
	redirect, err := h.checkout.Pay(r.Context(), sid)
	if err == nil {
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return
	}

	switch {
	case errors.Is(err, domain.ErrNoReservation):
		h.flash(w, r, msgNoReservation)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	case errors.Is(err, domain.ErrReservationExpired):
		h.flash(w, r, msgExpired)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	case errors.Is(err, domain.ErrPaymentInFlight):
		msg := backend.ServerMessage(err)
		if msg == "" {
			msg = msgPayInFlight
		}
		h.flash(w, r, msg)
	case errors.Is(err, domain.ErrMissingPaymentRedirect):
		h.flash(w, r, msgNoRedirect)
	case backend.IsKind(err, backend.KindUnauthorized):
		http.Redirect(w, r, loginURL("/checkout"), http.StatusSeeOther)
		return
	default:
		if k := backend.KindOf(err); k == backend.KindUnknown {
			h.log(r).WithError(err).Error("start payment")
		}
		h.flash(w, r, backend.UserMessage(err, msgPayFailed))
	}
	http.Redirect(w, r, "/checkout", http.StatusSeeOther)
}

func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.checkout.Cancel(r.Context(), VisitorFrom(r.Context())); err != nil {
		h.log(r).WithError(err).Error("cancel reservation")
	}
	h.flash(w, r, msgCancelled)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type resultData struct {
	Result       payment.Result
	Confirmation *payment.Confirmation
	Message      string
	PaymentID    string
}

// Success is the provider's return URL for approved payments. The status is
// polled before anything is shown; the provider redirect alone proves nothing.
func (h *Handlers) Success(w http.ResponseWriter, r *http.Request) {
	user := h.user(r)
	sid := VisitorFrom(r.Context())
	paymentID := r.URL.Query().Get("payment_id")

	res := h.poller.Poll(r.Context(), paymentID)
	d := resultData{Result: res, Message: res.Message, PaymentID: paymentID}
	if res.Outcome == payment.OutcomeAbandoned {
		return
	}

	if res.Outcome == payment.OutcomeApproved {
		conf, err := h.tickets.Load(r.Context(), h.checkout.Token(r.Context(), sid))
		if err != nil {
			h.log(r).WithError(err).Warn("load tickets after approval")
			d.Message = msgTicketsMissing
		}
		d.Confirmation = conf
	}

	if res.Final() {
		h.checkout.Settle(r.Context(), sid, res.Settlement())
		if res.Outcome == payment.OutcomeApproved {
			if err := h.checkout.Finish(r.Context(), sid); err != nil {
				h.log(r).WithError(err).Warn("forget reservation")
			}
			if store, err := h.openCart(r); err == nil {
				if err := store.Clear(r.Context()); err != nil {
					h.log(r).WithError(err).Warn("clear cart")
				}
			}
		}
	}

	title := "Payment result"
	if res.Outcome == payment.OutcomeApproved {
		title = "Purchase complete"
	}
	h.page(w, r, http.StatusOK, "success", title, user, d)
}

func (h *Handlers) Pending(w http.ResponseWriter, r *http.Request) {
	h.finish(r)
	h.page(w, r, http.StatusOK, "pending", "Payment pending", h.user(r), resultData{
		Message:   payment.MsgStillProcessing,
		PaymentID: r.URL.Query().Get("payment_id"),
	})
}

func (h *Handlers) Failure(w http.ResponseWriter, r *http.Request) {
	h.finish(r)
	h.page(w, r, http.StatusOK, "failure", "Payment failed", h.user(r), resultData{
		Message:   payment.MsgRejected,
		PaymentID: r.URL.Query().Get("payment_id"),
	})
}

func (h *Handlers) finish(r *http.Request) {
	if err := h.checkout.Finish(r.Context(), VisitorFrom(r.Context())); err != nil {
		h.log(r).WithError(err).Warn("forget reservation")
	}
}

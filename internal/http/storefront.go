package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/cart"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/blacknight/storefront/internal/rateLimit"
	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

const (
	msgOverLimit     = "You reached the maximum number of tickets allowed for this event."
	msgCartEmpty     = "Your cart is empty."
	msgReserveFailed = "We could not create the reservation. Please try again."
	msgTooMany       = "Too many attempts. Please wait a minute and try again."
	msgOtherEvent    = "Your cart has tickets for another event. Empty it before reserving."
	msgNotOnSale     = "That ticket type is no longer on sale."
	msgCartFailed    = "We could not update your cart."
)

type homeData struct {
	Featured []domain.Event
	Events   []domain.Event
}

func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	var (
		events []domain.Event
		user   *domain.User
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		events, err = h.api.ListEvents(ctx)
		return err
	})
	g.Go(func() error {
		u, err := h.api.Me(ctx)
		if err == nil {
			user = u
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		h.fail(w, r, user, err, "We could not load the events.")
		return
	}

	data := homeData{Events: events}
	for _, ev := range events {
		if ev.Featured {
			data.Featured = append(data.Featured, ev)
		}
	}
	h.page(w, r, http.StatusOK, "home", "Events", user, data)
}

type ticketRow struct {
	Type         domain.TicketTypeView
	Quantity     int
	Max          int
	CanIncrement bool
	CanDecrement bool
}

type eventData struct {
	Event    domain.Event
	Rows     []ticketRow
	Selected int
	Subtotal int64
	Fee      int64
	Total    int64
}

func eventView(ev domain.Event, store *cart.Store) eventData {
	g := cart.NewGuard(store)
	d := eventData{Event: ev}
	for _, tt := range ev.SellableTicketTypes() {
		l := cart.LimitsFor(ev, tt)
		d.Rows = append(d.Rows, ticketRow{
			Type:         tt,
			Quantity:     store.Quantity(tt.ID),
			Max:          g.MaxAllowed(tt.ID, l),
			CanIncrement: g.CanIncrement(tt.ID, l),
			CanDecrement: g.CanDecrement(tt.ID),
		})
	}
	if store.EventID() == ev.ID {
		d.Selected = store.TotalQuantity()
		d.Subtotal = store.Subtotal()
	}
	d.Fee = domain.ServiceFee(d.Subtotal, ev.ServiceFeePercent)
	d.Total = d.Subtotal + d.Fee
	return d
}

func (h *Handlers) eventID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func (h *Handlers) Event(w http.ResponseWriter, r *http.Request) {
	id, ok := h.eventID(w, r)
	if !ok {
		return
	}
	user := h.user(r)
	ev, err := h.api.GetEvent(r.Context(), id)
	if err != nil {
		h.fail(w, r, user, err, "We could not load the event.")
		return
	}
	store, err := h.openCart(r)
	if err != nil {
		h.fail(w, r, user, err, "We could not load your cart.")
		return
	}
	if store.EventID() != ev.ID {
		// selections for another event are not shown here
		store, _ = cart.Open(r.Context(), emptyCart{}, "")
	}
	h.page(w, r, http.StatusOK, "event", ev.Title, user, eventView(*ev, store))
}

// UpdateCart applies one +/- step to a ticket type of the event.
func (h *Handlers) UpdateCart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.eventID(w, r)
	if !ok {
		return
	}
	back := "/events/" + strconv.Itoa(id)
	ev, err := h.api.GetEvent(r.Context(), id)
	if err != nil {
		h.fail(w, r, nil, err, "We could not load the event.")
		return
	}

	store, err := h.openCart(r)
	if err == nil {
		err = store.ForEvent(r.Context(), ev.ID)
	}
	if err != nil {
		h.fail(w, r, nil, err, msgCartFailed)
		return
	}
	h.step(w, r, *ev, store)
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// step runs the guarded +/- named by the form against store. Increments only
// reach ticket types that are on sale; decrements reach anything in the cart.
func (h *Handlers) step(w http.ResponseWriter, r *http.Request, ev domain.Event, store *cart.Store) {
	ttID, _ := strconv.Atoi(r.PostFormValue("ticket_type"))
	g := cart.NewGuard(store)

	var err error
	if r.PostFormValue("op") == "dec" {
		tt, _ := ev.TicketType(ttID)
		tt.ID = ttID
		err = g.Decrement(r.Context(), tt)
	} else {
		tt, onSale := sellable(ev, ttID)
		if !onSale {
			h.flash(w, r, msgNotOnSale)
			return
		}
		err = g.Increment(r.Context(), tt, cart.LimitsFor(ev, tt))
	}
	switch {
	case errors.Is(err, domain.ErrOverLimit):
		h.flash(w, r, msgOverLimit)
	case err != nil:
		h.log(r).WithError(err).Error("update cart")
		h.flash(w, r, msgCartFailed)
	}
}

func sellable(ev domain.Event, ticketTypeID int) (domain.TicketTypeView, bool) {
	for _, tt := range ev.SellableTicketTypes() {
		if tt.ID == ticketTypeID {
			return tt, true
		}
	}
	return domain.TicketTypeView{}, false
}

type cartRow struct {
	Item         domain.CartItem
	Max          int
	CanIncrement bool
	CanDecrement bool
}

type cartData struct {
	Event    *domain.Event
	Rows     []cartRow
	Subtotal int64
	Fee      int64
	Total    int64
}

func cartView(store *cart.Store, ev *domain.Event) cartData {
	g := cart.NewGuard(store)
	d := cartData{Event: ev, Subtotal: store.Subtotal()}
	for _, item := range store.Items() {
		row := cartRow{Item: item, CanDecrement: g.CanDecrement(item.TicketTypeID)}
		if ev != nil {
			if tt, ok := sellable(*ev, item.TicketTypeID); ok {
				l := cart.LimitsFor(*ev, tt)
				row.Max = g.MaxAllowed(tt.ID, l)
				row.CanIncrement = g.CanIncrement(tt.ID, l)
			}
		}
		d.Rows = append(d.Rows, row)
	}
	if ev != nil {
		d.Fee = domain.ServiceFee(d.Subtotal, ev.ServiceFeePercent)
	}
	d.Total = d.Subtotal + d.Fee
	return d
}

// cartEvent loads the event the cart is bound to; a deleted event yields nil.
func (h *Handlers) cartEvent(ctx context.Context, store *cart.Store) (*domain.Event, error) {
	if store.EventID() == 0 || store.Empty() {
		return nil, nil
	}
	ev, err := h.api.GetEvent(ctx, store.EventID())
	if backend.IsKind(err, backend.KindNotFound) {
		return nil, nil
	}
	return ev, err
}

func (h *Handlers) Cart(w http.ResponseWriter, r *http.Request) {
	user := h.user(r)
	store, err := h.openCart(r)
	if err != nil {
		h.fail(w, r, user, err, "We could not load your cart.")
		return
	}
	ev, err := h.cartEvent(r.Context(), store)
	if err != nil {
		h.fail(w, r, user, err, "We could not load the event.")
		return
	}
	h.page(w, r, http.StatusOK, "cart", "Your cart", user, cartView(store, ev))
}

// CartUpdate is the cart page's +/- control, guarded like the event page.
func (h *Handlers) CartUpdate(w http.ResponseWriter, r *http.Request) {
	store, err := h.openCart(r)
	if err != nil {
		h.fail(w, r, nil, err, msgCartFailed)
		return
	}
	ev, err := h.cartEvent(r.Context(), store)
	switch {
	case err != nil:
		h.flash(w, r, backend.UserMessage(err, msgCartFailed))
	case ev != nil:
		h.step(w, r, *ev, store)
	case r.PostFormValue("op") == "dec":
		// event is gone; only shrinking is allowed
		h.step(w, r, domain.Event{ID: store.EventID()}, store)
	}
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	ttID, _ := strconv.Atoi(r.PostFormValue("ticket_type"))
	store, err := h.openCart(r)
	if err == nil {
		item, _ := store.Item(ttID)
		err = store.SetQuantity(r.Context(), ttID, item.Name, item.Price, 0)
	}
	if err != nil {
		h.log(r).WithError(err).Error("remove from cart")
		h.flash(w, r, msgCartFailed)
	}
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	store, err := h.openCart(r)
	if err == nil {
		err = store.Clear(r.Context())
	}
	if err != nil {
		h.log(r).WithError(err).Error("clear cart")
		h.flash(w, r, msgCartFailed)
	}
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// Reserve turns the cart into a backend reservation and sends the visitor to
// checkout.
func (h *Handlers) Reserve(w http.ResponseWriter, r *http.Request) {
	sid := VisitorFrom(r.Context())
	if !h.limiter.Allow(r.Context(), rateLimit.Reserve, sid) {
		h.flash(w, r, msgTooMany)
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}
	if h.user(r) == nil {
		http.Redirect(w, r, loginURL("/cart"), http.StatusSeeOther)
		return
	}

	store, err := h.openCart(r)
	if err != nil {
		h.fail(w, r, nil, err, "We could not load your cart.")
		return
	}
	if store.Empty() {
		h.flash(w, r, msgCartEmpty)
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}
	ev, err := h.api.GetEvent(r.Context(), store.EventID())
	if err != nil {
		h.flash(w, r, backend.UserMessage(err, msgReserveFailed))
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}

	if _, err := h.checkout.Reserve(r.Context(), sid, *ev, store); err != nil {
		h.flash(w, r, reserveMessage(err))
		if backend.IsKind(err, backend.KindUnauthorized) {
			http.Redirect(w, r, loginURL("/cart"), http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/checkout", http.StatusSeeOther)
}

func reserveMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrCartEmpty):
		return msgCartEmpty
	case errors.Is(err, domain.ErrOverLimit):
		return msgOverLimit
	case errors.Is(err, domain.ErrInvalidInput):
		return msgOtherEvent
	}
	return backend.UserMessage(err, msgReserveFailed)
}

// emptyCart backs the throwaway store used to render an event with no selections.
type emptyCart struct{}

func (emptyCart) Load(context.Context, string) (cart.Cart, error) { return cart.Cart{}, nil }
func (emptyCart) Save(context.Context, string, cart.Cart) error   { return nil }
func (emptyCart) Delete(context.Context, string) error            { return nil }

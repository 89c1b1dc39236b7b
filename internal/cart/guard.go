package cart

import (
	"context"

	"github.com/blacknight/storefront/internal/domain"
	"github.com/cockroachdb/errors"
)

// Limits are the server-reported constraints for one ticket type.
// A nil GlobalCap means the event has no per-user maximum.
type Limits struct {
	Stock     int
	GlobalCap *int
	Inactive  bool
}

func LimitsFor(ev domain.Event, tt domain.TicketTypeView) Limits {
	return Limits{Stock: tt.Stock, GlobalCap: ev.MaxTicketsPerUser, Inactive: !tt.Active}
}

// MaxAllowed is the largest quantity the user may hold of one ticket type
// given what is already selected of the event's other ticket types.
func MaxAllowed(l Limits, otherSelected int) int {
	stock := l.Stock
	if stock < 0 {
		stock = 0
	}
	byCap := stock
	if l.GlobalCap != nil {
		byCap = *l.GlobalCap - otherSelected
		if byCap < 0 {
			byCap = 0
		}
	}
	if byCap < stock {
		return byCap
	}
	return stock
}

// Guard applies MaxAllowed to store mutations. It keeps no state: every call
// re-derives the bound from the store's current contents.
type Guard struct {
	store *Store
}

func NewGuard(s *Store) *Guard {
	return &Guard{store: s}
}

func (g *Guard) MaxAllowed(ticketTypeID int, l Limits) int {
	other := g.store.TotalQuantity() - g.store.Quantity(ticketTypeID)
	return MaxAllowed(l, other)
}

// Selectable reports whether the ticket type is on sale at all.
func (g *Guard) Selectable(l Limits) bool {
	return !l.Inactive && l.Stock > 0
}

func (g *Guard) CanIncrement(ticketTypeID int, l Limits) bool {
	return g.Selectable(l) && g.store.Quantity(ticketTypeID) < g.MaxAllowed(ticketTypeID, l)
}

func (g *Guard) CanDecrement(ticketTypeID int) bool {
	return g.store.Quantity(ticketTypeID) > 0
}

func (g *Guard) Increment(ctx context.Context, tt domain.TicketTypeView, l Limits) error {
	if !g.CanIncrement(tt.ID, l) {
		return errors.Wrapf(domain.ErrOverLimit, "ticket type %d: max %d", tt.ID, g.MaxAllowed(tt.ID, l))
	}
	return g.store.SetQuantity(ctx, tt.ID, tt.Name, tt.Price, g.store.Quantity(tt.ID)+1)
}

func (g *Guard) Decrement(ctx context.Context, tt domain.TicketTypeView) error {
	if !g.CanDecrement(tt.ID) {
		return nil
	}
	item, _ := g.store.Item(tt.ID)
	name, price := item.Name, item.Price
	if tt.Name != "" {
		name, price = tt.Name, tt.Price
	}
	return g.store.SetQuantity(ctx, tt.ID, name, price, item.Quantity-1)
}

// Set jumps directly to quantity, for forms that submit a number.
func (g *Guard) Set(ctx context.Context, tt domain.TicketTypeView, l Limits, quantity int) error {
	if quantity < 0 {
		return errors.Wrapf(domain.ErrInvalidInput, "negative quantity %d", quantity)
	}
	if quantity > g.store.Quantity(tt.ID) && quantity > g.MaxAllowed(tt.ID, l) {
		return errors.Wrapf(domain.ErrOverLimit, "ticket type %d: max %d", tt.ID, g.MaxAllowed(tt.ID, l))
	}
	return g.store.SetQuantity(ctx, tt.ID, tt.Name, tt.Price, quantity)
}

// CheckTotal is the fast-fail validation run before asking the backend for a
// reservation.
func CheckTotal(s *Store, globalCap *int) error {
	if s.Empty() {
		return domain.ErrCartEmpty
	}
	if globalCap != nil && s.TotalQuantity() > *globalCap {
		return errors.Wrapf(domain.ErrOverLimit, "total %d over per-user cap %d", s.TotalQuantity(), *globalCap)
	}
	return nil
}

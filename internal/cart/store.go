package cart

import (
	"context"

	"github.com/blacknight/storefront/internal/domain"
	"github.com/cockroachdb/errors"
)

// Cart holds the selections for a single event.
type Cart struct {
	EventID int               `json:"eventId"`
	Items   []domain.CartItem `json:"items"`
}

// Persister is the durable storage behind a Store, keyed by visitor session.
type Persister interface {
	Load(ctx context.Context, sid string) (Cart, error)
	Save(ctx context.Context, sid string, c Cart) error
	Delete(ctx context.Context, sid string) error
}

// Store owns one visitor's cart. All mutation goes through SetQuantity and
// Clear; a Store is not safe for concurrent use and is meant to live for one
// request.
type Store struct {
	sid     string
	persist Persister
	cart    Cart
}

func Open(ctx context.Context, p Persister, sid string) (*Store, error) {
	c, err := p.Load(ctx, sid)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	return &Store{sid: sid, persist: p, cart: normalize(c)}, nil
}

// ForEvent binds the cart to eventID, clearing selections made for another event.
func (s *Store) ForEvent(ctx context.Context, eventID int) error {
	if s.cart.EventID == eventID {
		return nil
	}
	if s.cart.EventID == 0 && len(s.cart.Items) == 0 {
		s.cart.EventID = eventID
		return nil
	}
	s.cart = Cart{EventID: eventID}
	return s.save(ctx)
}

func (s *Store) SetQuantity(ctx context.Context, ticketTypeID int, name string, price int64, quantity int) error {
	if quantity < 0 {
		return errors.Wrapf(domain.ErrInvalidInput, "negative quantity %d", quantity)
	}

	idx := s.index(ticketTypeID)
	switch {
	case quantity == 0:
		if idx >= 0 {
			s.cart.Items = append(s.cart.Items[:idx], s.cart.Items[idx+1:]...)
		}
	case idx >= 0:
		s.cart.Items[idx] = domain.CartItem{TicketTypeID: ticketTypeID, Name: name, Price: price, Quantity: quantity}
	default:
		s.cart.Items = append(s.cart.Items, domain.CartItem{TicketTypeID: ticketTypeID, Name: name, Price: price, Quantity: quantity})
	}

	return s.save(ctx)
}

func (s *Store) Clear(ctx context.Context) error {
	s.cart = Cart{}
	if err := s.persist.Delete(ctx, s.sid); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func (s *Store) EventID() int { return s.cart.EventID }

// Items returns a copy of the current selections.
func (s *Store) Items() []domain.CartItem {
	out := make([]domain.CartItem, len(s.cart.Items))
	copy(out, s.cart.Items)
	return out
}

func (s *Store) Item(ticketTypeID int) (domain.CartItem, bool) {
	if idx := s.index(ticketTypeID); idx >= 0 {
		return s.cart.Items[idx], true
	}
	return domain.CartItem{}, false
}

func (s *Store) Quantity(ticketTypeID int) int {
	item, _ := s.Item(ticketTypeID)
	return item.Quantity
}

func (s *Store) TotalQuantity() int {
	total := 0
	for _, i := range s.cart.Items {
		total += i.Quantity
	}
	return total
}

func (s *Store) Subtotal() int64 {
	var total int64
	for _, i := range s.cart.Items {
		total += i.Subtotal()
	}
	return total
}

func (s *Store) Empty() bool { return len(s.cart.Items) == 0 }

func (s *Store) index(ticketTypeID int) int {
	for i, item := range s.cart.Items {
		if item.TicketTypeID == ticketTypeID {
			return i
		}
	}
	return -1
}

func (s *Store) save(ctx context.Context) error {
	if err := s.persist.Save(ctx, s.sid, s.cart); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}

// normalize drops zero-quantity and duplicate entries a stale payload might carry.
func normalize(c Cart) Cart {
	seen := make(map[int]bool, len(c.Items))
	items := make([]domain.CartItem, 0, len(c.Items))
	for _, i := range c.Items {
		if i.Quantity <= 0 || seen[i.TicketTypeID] {
			continue
		}
		seen[i.TicketTypeID] = true
		items = append(items, i)
	}
	c.Items = items
	return c
}

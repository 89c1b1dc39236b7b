package payment

import (
	"context"
	"net/url"

	"github.com/blacknight/storefront/internal/domain"
	"github.com/blacknight/storefront/internal/observability"
	"github.com/cockroachdb/errors"
)

var ErrTicketsUnavailable = errors.New("tickets could not be retrieved")

type TicketSource interface {
	ConfirmReservation(ctx context.Context, token string) (*domain.Event, []domain.Ticket, error)
	MyTickets(ctx context.Context) ([]domain.Ticket, *domain.Event, error)
}

type Confirmation struct {
	Event   *domain.Event
	Tickets []domain.Ticket
}

// QRPath is where the storefront serves a ticket's QR image.
func QRPath(code string) string {
	return "/tickets/" + url.PathEscape(code) + "/qrcode"
}

type TicketLoader struct {
	source TicketSource
	logger observability.Logger
}

func NewTicketLoader(source TicketSource, logger observability.Logger) *TicketLoader {
	return &TicketLoader{source: source, logger: logger}
}

// Load fetches the tickets of an approved payment, by reservation token when
// there is one and from the visitor's ticket list otherwise.
func (l *TicketLoader) Load(ctx context.Context, token string) (*Confirmation, error) {
	if token != "" {
		ev, tickets, err := l.source.ConfirmReservation(ctx, token)
		if err == nil {
			return withQR(&Confirmation{Event: ev, Tickets: tickets}), nil
		}
		l.logger.WithField("token", token).WithError(err).Warn("confirm by token failed, falling back to my tickets")
	}

	tickets, ev, err := l.source.MyTickets(ctx)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "load my tickets"), ErrTicketsUnavailable)
	}
	return withQR(&Confirmation{Event: ev, Tickets: tickets}), nil
}

func withQR(c *Confirmation) *Confirmation {
	for i := range c.Tickets {
		c.Tickets[i].QRPath = QRPath(c.Tickets[i].Code)
	}
	return c
}

package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/blacknight/storefront/internal/domain"
)

// MyTickets lists the tickets of the logged-in visitor together with the
// event of the first one, if any.
func (c *Client) MyTickets(ctx context.Context) ([]domain.Ticket, *domain.Event, error) {
	var dtos []ticketDTO
	if err := c.do(ctx, "my_tickets", http.MethodGet, "/api/tickets/mine", nil, &dtos); err != nil {
		return nil, nil, err
	}
	tickets := make([]domain.Ticket, 0, len(dtos))
	var first *domain.Event
	for _, t := range dtos {
		tickets = append(tickets, domain.Ticket{ID: t.ID, Code: t.Code})
		if first == nil && t.Event != nil {
			ev := t.Event.toDomain()
			first = &ev
		}
	}
	return tickets, first, nil
}

// QRCode fetches the rendered QR image of a ticket.
func (c *Client) QRCode(ctx context.Context, code string) ([]byte, string, error) {
	resp, err := c.roundTrip(ctx, "qr_code", http.MethodGet, "/api/tickets/"+url.PathEscape(code)+"/qrcode", nil,
		withHeader("Accept", "image/*"))
	if err != nil {
		return nil, "", err
	}
	ct := resp.header.Get("Content-Type")
	if ct == "" {
		ct = "image/png"
	}
	return resp.body, ct, nil
}

package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/blacknight/storefront/internal/domain"
	"github.com/google/uuid"
)

type reservationLine struct {
	TicketTypeID int `json:"ticketTypeId"`
	Quantity     int `json:"quantity"`
}

// CreateReservation asks the backend to hold the cart lines of one event.
func (c *Client) CreateReservation(ctx context.Context, eventID int, items []domain.CartItem) (domain.ReservationSession, error) {
	body := struct {
		EventID int               `json:"eventId"`
		Items   []reservationLine `json:"items"`
	}{EventID: eventID, Items: make([]reservationLine, 0, len(items))}
	for _, it := range items {
		body.Items = append(body.Items, reservationLine{TicketTypeID: it.TicketTypeID, Quantity: it.Quantity})
	}

	var out struct {
		Reservation *reservationDTO `json:"reservation"`
	}
	if err := c.do(ctx, "create_reservation", http.MethodPost, "/api/reservations", body, &out); err != nil {
		return domain.ReservationSession{}, err
	}
	if out.Reservation == nil || out.Reservation.Token == "" {
		return domain.ReservationSession{}, &Error{Op: "create_reservation", Kind: KindServer, Message: "reservation token missing from response"}
	}
	return domain.ReservationSession{Token: out.Reservation.Token, ExpiresAt: out.Reservation.ExpiresAt}, nil
}

// GetReservation fetches a live reservation. A body carrying an error on a
// 2xx response is treated as not found.
func (c *Client) GetReservation(ctx context.Context, token string) (*domain.Reservation, error) {
	var out struct {
		Error       string               `json:"error"`
		Reservation *reservationDTO      `json:"reservation"`
		Items       []reservationItemDTO `json:"items"`
		Total       number               `json:"total"`
	}
	if err := c.do(ctx, "get_reservation", http.MethodGet, "/api/reservations/"+url.PathEscape(token), nil, &out); err != nil {
		return nil, err
	}
	if out.Error != "" || out.Reservation == nil {
		return nil, &Error{Op: "get_reservation", Kind: KindNotFound, Status: http.StatusOK, Message: out.Error}
	}

	r := &domain.Reservation{
		ID:        out.Reservation.ID,
		Token:     out.Reservation.Token,
		ExpiresAt: out.Reservation.ExpiresAt,
		Event:     out.Reservation.Event.toDomain(),
		Lines:     make([]domain.ReservationLine, 0, len(out.Items)),
		Subtotal:  out.Total.int64(),
	}
	for _, it := range out.Items {
		line := domain.ReservationLine{
			TicketTypeID: it.TicketTypeID,
			Quantity:     it.Quantity.int(),
			Price:        it.Price.int64(),
			Subtotal:     it.Subtotal.int64(),
		}
		if it.TicketType != nil {
			line.Name = it.TicketType.Name
		}
		r.Lines = append(r.Lines, line)
	}
	return r, nil
}

// ConfirmReservation returns the event and the tickets issued for a paid reservation.
func (c *Client) ConfirmReservation(ctx context.Context, token string) (*domain.Event, []domain.Ticket, error) {
	var out struct {
		Event   *eventDTO   `json:"event"`
		Tickets []ticketDTO `json:"tickets"`
	}
	if err := c.do(ctx, "confirm_reservation", http.MethodGet, "/api/reservations/confirm-by-token/"+url.PathEscape(token), nil, &out); err != nil {
		return nil, nil, err
	}
	var ev *domain.Event
	if out.Event != nil {
		e := out.Event.toDomain()
		ev = &e
	}
	tickets := make([]domain.Ticket, 0, len(out.Tickets))
	for _, t := range out.Tickets {
		tickets = append(tickets, domain.Ticket{ID: t.ID, Code: t.Code})
	}
	return ev, tickets, nil
}

// PaymentKey derives a stable Idempotency-Key for the payment of one reservation.
func PaymentKey(reservationToken string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("payment:"+reservationToken)).String()
}

// CreatePayment opens a payment for the reservation and returns the provider
// checkout URL.
func (c *Client) CreatePayment(ctx context.Context, reservationToken string) (string, error) {
	body := struct {
		ReservationToken string `json:"reservationToken"`
	}{ReservationToken: reservationToken}
	var out struct {
		InitPoint string `json:"init_point"`
	}
	if err := c.do(ctx, "create_payment", http.MethodPost, "/api/payments/create", body, &out,
		withHeader("Idempotency-Key", PaymentKey(reservationToken))); err != nil {
		return "", err
	}
	return out.InitPoint, nil
}

// PaymentStatus returns the raw status string; unknown values are passed through.
func (c *Client) PaymentStatus(ctx context.Context, paymentID string) (domain.PaymentStatus, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, "payment_status", http.MethodGet, "/api/payments/status/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return "", err
	}
	return domain.PaymentStatus(out.Status), nil
}

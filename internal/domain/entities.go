package domain

import (
	"sort"
	"time"
)

// CartItem is one ticket-type selection. Price is in minor currency units.
type CartItem struct {
	TicketTypeID int    `json:"ticketTypeId"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	Quantity     int    `json:"quantity"`
}

func (i CartItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// TicketTypeView is the read-only projection of a backend ticket type.
type TicketTypeView struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	Order       int    `json:"order"`
}

type Event struct {
	ID                 int              `json:"id"`
	Title              string           `json:"title"`
	Status             string           `json:"status"`
	StartAt            time.Time        `json:"startAt"`
	Image              string           `json:"image,omitempty"`
	Featured           bool             `json:"featured,omitempty"`
	ShortDescription   string           `json:"shortDescription,omitempty"`
	LongDescription    string           `json:"longDescription,omitempty"`
	OpeningTime        string           `json:"openingTime,omitempty"`
	EndingTime         string           `json:"endingTime,omitempty"`
	VenueName          string           `json:"venueName,omitempty"`
	VenueAddress       string           `json:"venueAddress,omitempty"`
	VenuePostalCode    string           `json:"venuePostalCode,omitempty"`
	VenueCity          string           `json:"venueCity,omitempty"`
	VenueProvince      string           `json:"venueProvince,omitempty"`
	VenueCountry       string           `json:"venueCountry,omitempty"`
	VenueMapURL        string           `json:"venueMapUrl,omitempty"`
	SpotifyPlaylistURL string           `json:"spotifyPlaylistUrl,omitempty"`
	Capacity           int              `json:"capacity"`
	MaxTicketsPerUser  *int             `json:"maxTicketsPerUser,omitempty"`
	ServiceFeePercent  float64          `json:"serviceFeePercent"`
	TicketTypes        []TicketTypeView `json:"ticketTypes"`
}

// SellableTicketTypes returns active ticket types with stock left, by display order.
func (e Event) SellableTicketTypes() []TicketTypeView {
	out := make([]TicketTypeView, 0, len(e.TicketTypes))
	for _, t := range e.TicketTypes {
		if t.Active && t.Stock > 0 {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (e Event) TicketType(id int) (TicketTypeView, bool) {
	for _, t := range e.TicketTypes {
		if t.ID == id {
			return t, true
		}
	}
	return TicketTypeView{}, false
}

// ReservationSession is the client-held handle of a server reservation.
type ReservationSession struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ReservationLine struct {
	TicketTypeID int    `json:"ticketTypeId"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	Price        int64  `json:"price"`
	Subtotal     int64  `json:"subtotal"`
}

// Reservation is the backend view of a reservation fetched by token.
type Reservation struct {
	ID        int               `json:"id"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Event     Event             `json:"event"`
	Lines     []ReservationLine `json:"items"`
	Subtotal  int64             `json:"total"`
}

type Ticket struct {
	ID     int    `json:"id"`
	Code   string `json:"code"`
	QRPath string `json:"-"`
}

type User struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar,omitempty"`
	Role      string `json:"role"`
}

const RoleAdmin = "ADMIN"

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type Organizer struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

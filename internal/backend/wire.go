package backend

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/blacknight/storefront/internal/domain"
	"github.com/cockroachdb/errors"
)

// number accepts JSON numbers, numeric strings (decimal columns are sent as
// strings) and null.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return errors.Wrapf(err, "numeric string %q", s)
		}
		*n = number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

func (n number) int64() int64 { return int64(math.Round(float64(n))) }
func (n number) int() int     { return int(math.Round(float64(n))) }

type ticketTypeDTO struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Price       number  `json:"price"`
	Stock       number  `json:"stock"`
	Color       string  `json:"color"`
	Description string  `json:"description"`
	Active      *bool   `json:"active"`
	Order       *number `json:"order"`
}

func (t ticketTypeDTO) toDomain(index int) domain.TicketTypeView {
	tt := domain.TicketTypeView{
		ID:          t.ID,
		Name:        t.Name,
		Price:       t.Price.int64(),
		Stock:       t.Stock.int(),
		Color:       t.Color,
		Description: t.Description,
		Active:      t.Active == nil || *t.Active,
		Order:       index + 1,
	}
	if t.Order != nil {
		tt.Order = t.Order.int()
	}
	return tt
}

type eventDTO struct {
	ID                 int             `json:"id"`
	Title              string          `json:"title"`
	Status             string          `json:"status"`
	StartAt            time.Time       `json:"startAt"`
	Image              string          `json:"image"`
	Featured           bool            `json:"featured"`
	ShortDescription   string          `json:"shortDescription"`
	LongDescription    string          `json:"longDescription"`
	OpeningTime        string          `json:"openingTime"`
	EndingTime         string          `json:"endingTime"`
	VenueName          string          `json:"venueName"`
	VenueAddress       string          `json:"venueAddress"`
	VenuePostalCode    string          `json:"venuePostalCode"`
	VenueCity          string          `json:"venueCity"`
	VenueProvince      string          `json:"venueProvince"`
	VenueCountry       string          `json:"venueCountry"`
	VenueMapURL        string          `json:"venueMapUrl"`
	SpotifyPlaylistURL string          `json:"spotifyPlaylistUrl"`
	Capacity           number          `json:"capacity"`
	MaxTicketsPerUser  *number         `json:"maxTicketsPerUser"`
	ServiceFeePercent  number          `json:"serviceFeePercent"`
	TicketTypes        []ticketTypeDTO `json:"ticketTypes"`
}

func (e eventDTO) toDomain() domain.Event {
	ev := domain.Event{
		ID:                 e.ID,
		Title:              e.Title,
		Status:             e.Status,
		StartAt:            e.StartAt,
		Image:              e.Image,
		Featured:           e.Featured,
		ShortDescription:   e.ShortDescription,
		LongDescription:    e.LongDescription,
		OpeningTime:        e.OpeningTime,
		EndingTime:         e.EndingTime,
		VenueName:          e.VenueName,
		VenueAddress:       e.VenueAddress,
		VenuePostalCode:    e.VenuePostalCode,
		VenueCity:          e.VenueCity,
		VenueProvince:      e.VenueProvince,
		VenueCountry:       e.VenueCountry,
		VenueMapURL:        e.VenueMapURL,
		SpotifyPlaylistURL: e.SpotifyPlaylistURL,
		Capacity:           e.Capacity.int(),
		ServiceFeePercent:  float64(e.ServiceFeePercent),
		TicketTypes:        make([]domain.TicketTypeView, 0, len(e.TicketTypes)),
	}
	// a cap of zero or less means "no cap"
	if e.MaxTicketsPerUser != nil && e.MaxTicketsPerUser.int() > 0 {
		limit := e.MaxTicketsPerUser.int()
		ev.MaxTicketsPerUser = &limit
	}
	for i, t := range e.TicketTypes {
		ev.TicketTypes = append(ev.TicketTypes, t.toDomain(i))
	}
	return ev
}

type reservationItemDTO struct {
	TicketTypeID int    `json:"ticketTypeId"`
	Quantity     number `json:"quantity"`
	Price        number `json:"price"`
	Subtotal     number `json:"subtotal"`
	TicketType   *struct {
		Name string `json:"name"`
	} `json:"ticketType"`
}

type reservationDTO struct {
	ID        int       `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Event     eventDTO  `json:"event"`
}

type ticketDTO struct {
	ID    int       `json:"id"`
	Code  string    `json:"code"`
	Event *eventDTO `json:"event"`
}

type userDTO struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
	Role      string `json:"role"`
}

func (u userDTO) toDomain() *domain.User {
	return &domain.User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Avatar:    u.Avatar,
		Role:      u.Role,
	}
}

// TicketTypePayload is one ticket type as sent on event create/update.
type TicketTypePayload struct {
	ID          int    `json:"id,omitempty"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
	Color       string `json:"color"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	Order       int    `json:"order"`
}

// EventPayload is the admin create/update body. Optional fields left nil are
// omitted so the backend keeps its defaults.
type EventPayload struct {
	Title              string              `json:"title"`
	StartAt            string              `json:"startAt"`
	Capacity           int                 `json:"capacity"`
	Status             string              `json:"status,omitempty"`
	Image              *string             `json:"image,omitempty"`
	Featured           bool                `json:"featured"`
	ShortDescription   *string             `json:"shortDescription,omitempty"`
	LongDescription    *string             `json:"longDescription,omitempty"`
	OpeningTime        *string             `json:"openingTime,omitempty"`
	EndingTime         *string             `json:"endingTime,omitempty"`
	VenueName          *string             `json:"venueName,omitempty"`
	VenueAddress       *string             `json:"venueAddress,omitempty"`
	VenuePostalCode    *string             `json:"venuePostalCode,omitempty"`
	VenueCity          *string             `json:"venueCity,omitempty"`
	VenueProvince      *string             `json:"venueProvince,omitempty"`
	VenueCountry       *string             `json:"venueCountry,omitempty"`
	VenueMapURL        string              `json:"venueMapUrl"`
	SpotifyPlaylistURL string              `json:"spotifyPlaylistUrl"`
	MaxTicketsPerUser  *int                `json:"maxTicketsPerUser,omitempty"`
	ServiceFeePercent  *float64            `json:"serviceFeePercent,omitempty"`
	TicketTypes        []TicketTypePayload `json:"ticketTypes"`
}

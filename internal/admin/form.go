package admin

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

const (
	StatusPublished = "published"
	StatusDraft     = "draft"
	StatusCancelled = "cancelled"

	DefaultTicketColor = "#9333EA"
	dateTimeLocal      = "2006-01-02T15:04"
)

type TicketTypeForm struct {
	ID          int    `validate:"gte=0"`
	Name        string `validate:"required,max=80"`
	Price       int64  `validate:"gt=0"`
	Stock       int    `validate:"gt=0"`
	Color       string `validate:"omitempty,hexcolor"`
	Description string `validate:"max=500"`
	Active      bool
}

// EventForm is the admin create/edit form as submitted.
type EventForm struct {
	Title              string `validate:"required,max=200"`
	StartAt            string `validate:"required,datetimelocal"`
	Capacity           int    `validate:"gt=0"`
	Status             string `validate:"omitempty,oneof=published draft cancelled"`
	Image              string `validate:"omitempty,uri"`
	Featured           bool
	ShortDescription   string `validate:"max=300"`
	LongDescription    string
	OpeningTime        string `validate:"omitempty,clock"`
	EndingTime         string `validate:"omitempty,clock"`
	VenueName          string
	VenueAddress       string
	VenuePostalCode    string
	VenueCity          string
	VenueProvince      string
	VenueCountry       string
	VenueMapURL        string           `validate:"omitempty,url"`
	SpotifyPlaylistURL string           `validate:"omitempty,url"`
	MaxTicketsPerUser  string           `validate:"omitempty,number"`
	ServiceFeePercent  string           `validate:"omitempty,numeric"`
	TicketTypes        []TicketTypeForm `validate:"required,min=1,dive"`
}

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("datetimelocal", func(fl validator.FieldLevel) bool {
		_, err := parseLocal(fl.Field().String(), time.UTC)
		return err == nil
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(fl.Field().String())
	})
	return v
}()

func parseLocal(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(dateTimeLocal, s, loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateTimeLocal+":05", s, loc)
}

// ValidationError lists the problems of a rejected form, one line per field.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid event: " + strings.Join(e.Problems, "; ")
}

func (f EventForm) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "validate event form")
	}
	ve := &ValidationError{}
	for _, fe := range fieldErrs {
		ve.Problems = append(ve.Problems, describe(fe))
	}
	return errors.Mark(ve, domain.ErrInvalidInput)
}

var ticketField = regexp.MustCompile(`TicketTypes\[(\d+)\]\.(\w+)$`)

func describe(fe validator.FieldError) string {
	field := fe.Field()
	if m := ticketField.FindStringSubmatch(fe.Namespace()); m != nil {
		n, _ := strconv.Atoi(m[1])
		field = fmt.Sprintf("ticket type %d %s", n+1, strings.ToLower(m[2]))
	}
	switch fe.Tag() {
	case "required":
		if fe.Field() == "TicketTypes" {
			return "at least one ticket type is required"
		}
		return field + " is required"
	case "min":
		return field + " needs at least " + fe.Param() + " entries"
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "max":
		return field + " is too long"
	case "oneof":
		return field + " must be one of " + fe.Param()
	case "url", "uri":
		return field + " must be a valid URL"
	case "hexcolor":
		return field + " must be a hex color"
	case "datetimelocal":
		return field + " must be a valid date and time"
	case "clock":
		return field + " must look like HH:MM"
	case "number", "numeric":
		return field + " must be a number"
	default:
		return field + " is invalid"
	}
}

// ParseEventForm reads the form encoding used by the event editor. Ticket
// types are submitted as parallel tt_* lists.
func ParseEventForm(v url.Values) EventForm {
	f := EventForm{
		Title:              strings.TrimSpace(v.Get("title")),
		StartAt:            strings.TrimSpace(v.Get("startAt")),
		Capacity:           atoi(v.Get("capacity")),
		Status:             strings.TrimSpace(v.Get("status")),
		Image:              strings.TrimSpace(v.Get("image")),
		Featured:           checked(v.Get("featured")),
		ShortDescription:   strings.TrimSpace(v.Get("shortDescription")),
		LongDescription:    strings.TrimSpace(v.Get("longDescription")),
		OpeningTime:        strings.TrimSpace(v.Get("openingTime")),
		EndingTime:         strings.TrimSpace(v.Get("endingTime")),
		VenueName:          strings.TrimSpace(v.Get("venueName")),
		VenueAddress:       strings.TrimSpace(v.Get("venueAddress")),
		VenuePostalCode:    strings.TrimSpace(v.Get("venuePostalCode")),
		VenueCity:          strings.TrimSpace(v.Get("venueCity")),
		VenueProvince:      strings.TrimSpace(v.Get("venueProvince")),
		VenueCountry:       strings.TrimSpace(v.Get("venueCountry")),
		VenueMapURL:        strings.TrimSpace(v.Get("venueMapUrl")),
		SpotifyPlaylistURL: strings.TrimSpace(v.Get("spotifyPlaylistUrl")),
		MaxTicketsPerUser:  strings.TrimSpace(v.Get("maxTicketsPerUser")),
		ServiceFeePercent:  strings.TrimSpace(v.Get("serviceFeePercent")),
	}

	names := v["tt_name"]
	for i := range names {
		f.TicketTypes = append(f.TicketTypes, TicketTypeForm{
			ID:          atoi(at(v["tt_id"], i)),
			Name:        strings.TrimSpace(names[i]),
			Price:       int64(atoi(at(v["tt_price"], i))),
			Stock:       atoi(at(v["tt_stock"], i)),
			Color:       strings.TrimSpace(at(v["tt_color"], i)),
			Description: strings.TrimSpace(at(v["tt_description"], i)),
			// checkboxes do not submit when unchecked, so activity rides on a select
			Active: at(v["tt_active"], i) != "false",
		})
	}
	return f
}

func at(vals []string, i int) string {
	if i < len(vals) {
		return vals[i]
	}
	return ""
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func checked(s string) bool {
	return s == "on" || s == "true" || s == "1"
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Payload maps a validated form to the backend body. Empty optional fields
// are omitted and ticket types are renumbered 1..n in submitted order.
func (f EventForm) Payload() backend.EventPayload {
	p := backend.EventPayload{
		Title:              f.Title,
		StartAt:            f.StartAt,
		Capacity:           f.Capacity,
		Status:             f.Status,
		Image:              optional(f.Image),
		Featured:           f.Featured,
		ShortDescription:   optional(f.ShortDescription),
		LongDescription:    optional(f.LongDescription),
		OpeningTime:        optional(f.OpeningTime),
		EndingTime:         optional(f.EndingTime),
		VenueName:          optional(f.VenueName),
		VenueAddress:       optional(f.VenueAddress),
		VenuePostalCode:    optional(f.VenuePostalCode),
		VenueCity:          optional(f.VenueCity),
		VenueProvince:      optional(f.VenueProvince),
		VenueCountry:       optional(f.VenueCountry),
		VenueMapURL:        f.VenueMapURL,
		SpotifyPlaylistURL: f.SpotifyPlaylistURL,
		TicketTypes:        make([]backend.TicketTypePayload, 0, len(f.TicketTypes)),
	}
	if n, err := strconv.Atoi(f.MaxTicketsPerUser); err == nil && n > 0 {
		p.MaxTicketsPerUser = &n
	}
	if fee, err := strconv.ParseFloat(f.ServiceFeePercent, 64); err == nil {
		p.ServiceFeePercent = &fee
	}
	for i, t := range f.TicketTypes {
		color := t.Color
		if color == "" {
			color = DefaultTicketColor
		}
		p.TicketTypes = append(p.TicketTypes, backend.TicketTypePayload{
			ID:          t.ID,
			Name:        t.Name,
			Price:       t.Price,
			Stock:       t.Stock,
			Color:       color,
			Description: t.Description,
			Active:      t.Active,
			Order:       i + 1,
		})
	}
	return p
}

// FormFromEvent pre-fills the edit form, showing startAt in loc.
func FormFromEvent(ev domain.Event, loc *time.Location) EventForm {
	f := EventForm{
		Title:              ev.Title,
		StartAt:            ev.StartAt.In(loc).Format(dateTimeLocal),
		Capacity:           ev.Capacity,
		Status:             ev.Status,
		Image:              ev.Image,
		Featured:           ev.Featured,
		ShortDescription:   ev.ShortDescription,
		LongDescription:    ev.LongDescription,
		OpeningTime:        ev.OpeningTime,
		EndingTime:         ev.EndingTime,
		VenueName:          ev.VenueName,
		VenueAddress:       ev.VenueAddress,
		VenuePostalCode:    ev.VenuePostalCode,
		VenueCity:          ev.VenueCity,
		VenueProvince:      ev.VenueProvince,
		VenueCountry:       ev.VenueCountry,
		VenueMapURL:        ev.VenueMapURL,
		SpotifyPlaylistURL: ev.SpotifyPlaylistURL,
	}
	if ev.MaxTicketsPerUser != nil {
		f.MaxTicketsPerUser = strconv.Itoa(*ev.MaxTicketsPerUser)
	}
	if ev.ServiceFeePercent != 0 {
		f.ServiceFeePercent = strconv.FormatFloat(ev.ServiceFeePercent, 'f', -1, 64)
	}
	types := append([]domain.TicketTypeView(nil), ev.TicketTypes...)
	sortByOrder(types)
	for _, t := range types {
		f.TicketTypes = append(f.TicketTypes, TicketTypeForm{
			ID:          t.ID,
			Name:        t.Name,
			Price:       t.Price,
			Stock:       t.Stock,
			Color:       t.Color,
			Description: t.Description,
			Active:      t.Active,
		})
	}
	return f
}

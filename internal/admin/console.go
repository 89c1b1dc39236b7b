package admin

import (
	"context"
	"sort"
	"strconv"

	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/blacknight/storefront/internal/observability"
	"github.com/cockroachdb/errors"
)

type Backend interface {
	AdminEvents(ctx context.Context) ([]domain.Event, error)
	GetEvent(ctx context.Context, id int) (*domain.Event, error)
	CreateEvent(ctx context.Context, p backend.EventPayload) error
	UpdateEvent(ctx context.Context, id int, p backend.EventPayload) error
	SetEventStatus(ctx context.Context, id int, status string) error
	DeleteEvent(ctx context.Context, id int) error
	Organizers(ctx context.Context) ([]domain.Organizer, error)
}

type Auditor interface {
	Record(ctx context.Context, id, action, actor, subject string, data map[string]interface{}) error
}

type NopAuditor struct{}

func (NopAuditor) Record(context.Context, string, string, string, string, map[string]interface{}) error {
	return nil
}

const (
	ActionEventCreated = "event.created"
	ActionEventUpdated = "event.updated"
	ActionEventStatus  = "event.status"
	ActionEventDeleted = "event.deleted"
)

// Console runs the admin operations. Authorization is the backend's call;
// every mutation the backend accepts is audited.
type Console struct {
	api    Backend
	audit  Auditor
	logger observability.Logger
}

func NewConsole(api Backend, audit Auditor, logger observability.Logger) *Console {
	return &Console{api: api, audit: audit, logger: logger}
}

// Events lists events, optionally narrowed to one status.
func (c *Console) Events(ctx context.Context, status string) ([]domain.Event, error) {
	events, err := c.api.AdminEvents(ctx)
	if err != nil {
		return nil, err
	}
	return FilterByStatus(events, status), nil
}

func (c *Console) Event(ctx context.Context, id int) (*domain.Event, error) {
	return c.api.GetEvent(ctx, id)
}

func (c *Console) Organizers(ctx context.Context) ([]domain.Organizer, error) {
	return c.api.Organizers(ctx)
}

func (c *Console) Create(ctx context.Context, actor string, f EventForm) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := c.api.CreateEvent(ctx, f.Payload()); err != nil {
		return err
	}
	c.record(ctx, ActionEventCreated, actor, "", map[string]interface{}{
		"title":        f.Title,
		"startAt":      f.StartAt,
		"ticket_types": len(f.TicketTypes),
	})
	return nil
}

func (c *Console) Update(ctx context.Context, actor string, id int, f EventForm) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := c.api.UpdateEvent(ctx, id, f.Payload()); err != nil {
		return err
	}
	c.record(ctx, ActionEventUpdated, actor, subject(id), map[string]interface{}{"title": f.Title})
	return nil
}

func (c *Console) SetStatus(ctx context.Context, actor string, id int, status string) error {
	if !ValidStatus(status) {
		return errors.Wrapf(domain.ErrInvalidInput, "unknown status %q", status)
	}
	if err := c.api.SetEventStatus(ctx, id, status); err != nil {
		return err
	}
	c.record(ctx, ActionEventStatus, actor, subject(id), map[string]interface{}{"status": status})
	return nil
}

func (c *Console) Delete(ctx context.Context, actor string, id int) error {
	if err := c.api.DeleteEvent(ctx, id); err != nil {
		return err
	}
	c.record(ctx, ActionEventDeleted, actor, subject(id), nil)
	return nil
}

func (c *Console) record(ctx context.Context, action, actor, subj string, data map[string]interface{}) {
	if err := c.audit.Record(context.WithoutCancel(ctx), "", action, actor, subj, data); err != nil {
		c.logger.WithField("action", action).WithError(err).Warn("audit record failed")
	}
}

func subject(id int) string { return "event:" + strconv.Itoa(id) }

func ValidStatus(s string) bool {
	return s == StatusPublished || s == StatusDraft || s == StatusCancelled
}

// FilterByStatus keeps events with the given status; "" and "all" keep everything.
func FilterByStatus(events []domain.Event, status string) []domain.Event {
	if status == "" || status == "all" {
		return events
	}
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func sortByOrder(types []domain.TicketTypeView) {
	sort.SliceStable(types, func(i, j int) bool { return types[i].Order < types[j].Order })
}

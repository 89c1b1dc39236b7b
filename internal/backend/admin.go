package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/blacknight/storefront/internal/domain"
)

// AdminEvents lists every event regardless of status.
func (c *Client) AdminEvents(ctx context.Context) ([]domain.Event, error) {
	var dtos []eventDTO
	if err := c.do(ctx, "admin_events", http.MethodGet, "/api/admin/events", nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (c *Client) CreateEvent(ctx context.Context, p EventPayload) error {
	return c.do(ctx, "create_event", http.MethodPost, "/api/events", p, nil)
}

func (c *Client) UpdateEvent(ctx context.Context, id int, p EventPayload) error {
	return c.do(ctx, "update_event", http.MethodPut, fmt.Sprintf("/api/events/%d", id), p, nil)
}

func (c *Client) SetEventStatus(ctx context.Context, id int, status string) error {
	body := struct {
		Status string `json:"status"`
	}{status}
	return c.do(ctx, "set_event_status", http.MethodPut, fmt.Sprintf("/api/events/%d", id), body, nil)
}

func (c *Client) DeleteEvent(ctx context.Context, id int) error {
	return c.do(ctx, "delete_event", http.MethodDelete, fmt.Sprintf("/api/events/%d", id), nil, nil)
}

func (c *Client) Organizers(ctx context.Context) ([]domain.Organizer, error) {
	var out []domain.Organizer
	if err := c.do(ctx, "organizers", http.MethodGet, "/api/organizers/all", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/blacknight/storefront/internal/domain"
)

const StatusPublished = "published"

// ListEvents returns the published events, in backend order.
func (c *Client) ListEvents(ctx context.Context) ([]domain.Event, error) {
	var dtos []eventDTO
	if err := c.do(ctx, "list_events", http.MethodGet, "/api/events", nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(dtos))
	for _, d := range dtos {
		if d.Status == StatusPublished {
			out = append(out, d.toDomain())
		}
	}
	return out, nil
}

func (c *Client) GetEvent(ctx context.Context, id int) (*domain.Event, error) {
	var dto eventDTO
	if err := c.do(ctx, "get_event", http.MethodGet, fmt.Sprintf("/api/events/%d", id), nil, &dto); err != nil {
		return nil, err
	}
	ev := dto.toDomain()
	return &ev, nil
}

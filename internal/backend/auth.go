package backend

import (
	"context"
	"net/http"

	"github.com/blacknight/storefront/internal/domain"
)

// Me returns the logged-in user; an anonymous visitor yields (nil, nil).
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	if CredentialsFrom(ctx) == "" {
		return nil, nil
	}
	var dto userDTO
	err := c.do(ctx, "me", http.MethodGet, "/api/me", nil, &dto)
	if IsKind(err, KindUnauthorized) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dto.toDomain(), nil
}

// Login authenticates and returns the session cookie the backend issued.
func (c *Client) Login(ctx context.Context, email, password string) (*http.Cookie, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{email, password}
	resp, err := c.roundTrip(ctx, "login", http.MethodPost, "/api/login", body)
	if err != nil {
		return nil, err
	}
	cookie := resp.cookie(SessionCookie)
	if cookie == nil || cookie.Value == "" {
		return nil, &Error{Op: "login", Kind: KindServer, Status: resp.status, Message: "session cookie missing from response"}
	}
	return cookie, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/api/logout", nil, nil)
}

type Registration struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (c *Client) Register(ctx context.Context, r Registration) error {
	return c.do(ctx, "register", http.MethodPost, "/api/register", r, nil)
}

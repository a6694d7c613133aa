package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/magicmac/myday/internal/schema"
)

// User is the subset of a GoTrue user the app relies on.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// authResponse is returned by both the password and refresh-token grants.
type authResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

func (a *authResponse) session() *schema.Session {
	return &schema.Session{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		UserID:       a.User.ID,
		Email:        a.User.Email,
	}
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*schema.Session, error) {
	var out authResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
		out:    &out,
	})
	if err != nil {
		return nil, fmt.Errorf("sign in failed: %w", err)
	}
	return out.session(), nil
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*schema.Session, error) {
	var out authResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
		out:    &out,
	})
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return out.session(), nil
}

// GetUser resolves the user that owns accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var out User
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		token:  accessToken,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, ErrUnauthorized
	}
	return &out, nil
}

// AdminCreateUser creates a confirmed user. The client must be built with the
// service-role key.
func (c *Client) AdminCreateUser(ctx context.Context, email, password string) (*User, error) {
	var out User
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/admin/users",
		token:  c.apiKey,
		body: map[string]any{
			"email":         email,
			"password":      password,
			"email_confirm": true,
		},
		out: &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

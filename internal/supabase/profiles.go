package supabase

import (
	"context"
	"net/http"
	"net/url"
)

const profilesPath = "/rest/v1/profiles"

// Profile is a row of the profiles table.
type Profile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// GetProfile returns the profile with the given user id.
func (c *Client) GetProfile(ctx context.Context, token, userID string) (*Profile, error) {
	var out []Profile
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   profilesPath,
		query: url.Values{
			"select": {"id,email,is_admin"},
			"id":     {eq(userID)},
		},
		token: token,
		out:   &out,
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

// UpsertProfile inserts or merges a profile row.
func (c *Client) UpsertProfile(ctx context.Context, token string, p Profile) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   profilesPath,
		token:  token,
		prefer: "resolution=merge-duplicates",
		body:   []Profile{p},
	})
}

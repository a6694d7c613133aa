// Package supabase is a small REST client for the hosted backend: GoTrue auth
// endpoints and the PostgREST tasks and profiles tables.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a single API call when the caller's context has no
// deadline.
const DefaultTimeout = 15 * time.Second

var (
	// ErrUnauthorized is returned for 401 responses (expired or invalid token).
	ErrUnauthorized = errors.New("supabase: unauthorized")
	// ErrNotFound is returned for 404 responses and empty single-row reads.
	ErrNotFound = errors.New("supabase: not found")
)

// APIError is a non-2xx response other than 401 and 404.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("supabase status %d", e.Status)
}

// Client talks to one Supabase project with one API key.
//
// The anon key is used by end-user clients; a client built with the
// service-role key can call admin endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a Client. If httpClient is nil, http.DefaultClient is used.
func NewClient(httpClient *http.Client, baseURL, apiKey string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
	}
}

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// APIKey returns the key sent in the apikey header.
func (c *Client) APIKey() string { return c.apiKey }

// request describes one call to the backend.
type request struct {
	method string
	path   string
	query  url.Values
	token  string // bearer token; empty means no Authorization header
	prefer string
	body   any
	out    any
}

func (c *Client) do(ctx context.Context, r request) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		tok := &oauth2.Token{AccessToken: r.token, TokenType: "Bearer"}
		tok.SetAuthHeader(req)
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if r.out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", r.path, err)
		}
		return nil
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
}

// errorMessage extracts the human readable part of a GoTrue or PostgREST
// error body.
func errorMessage(r io.Reader) string {
	var eb struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&eb); err != nil {
		return ""
	}
	for _, s := range []string{eb.ErrorDescription, eb.Msg, eb.Message, eb.Error} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// eq builds a PostgREST equality filter value.
func eq(v string) string { return "eq." + v }

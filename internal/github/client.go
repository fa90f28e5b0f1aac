// Package github is a minimal client for the two GitHub REST endpoints
// Octodevs consumes: the public user lookup used by bulk resync, and the
// authenticated user lookup used when a profile is published.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrUnavailable is returned for any network failure, non-2xx response, or
// unparseable body from the GitHub API. Callers treat it as "no data" — it
// carries no more detail by design, so handler layers never leak GitHub
// internals to clients.
var ErrUnavailable = errors.New("github api unavailable")

const (
	defaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	acceptHeader   = "application/vnd.github+json"
	userAgent      = "octodevs/1.0"
)

// User is the subset of the GitHub user record that maps onto a profile.
// Nullable upstream fields are pointers so "absent" survives decoding.
type User struct {
	ID        int64   `json:"id"`
	Login     string  `json:"login"`
	Email     *string `json:"email"`
	Name      *string `json:"name"`
	AvatarURL string  `json:"avatar_url"`
	Bio       *string `json:"bio"`
	Location  *string `json:"location"`
	Blog      *string `json:"blog"`
	Twitter   *string `json:"twitter_username"`
	Followers int     `json:"followers"`
	Hireable  *bool   `json:"hireable"`
}

// Client talks to the GitHub REST API. The zero value is not usable; use New.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom http.Client, overriding the default timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a GitHub client. The embedded http.Client owns the request
// timeout so no call can block indefinitely.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserByLogin fetches the public record for any username. No auth required.
// Any failure is reported as ErrUnavailable.
func (c *Client) UserByLogin(ctx context.Context, login string) (*User, error) {
	return c.getUser(ctx, "/users/"+url.PathEscape(login), "")
}

// AuthenticatedUser fetches the record for the identity behind the given
// OAuth access token.
func (c *Client) AuthenticatedUser(ctx context.Context, token string) (*User, error) {
	return c.getUser(ctx, "/user", token)
}

// PrimaryEmail fetches the primary address from /user/emails. GitHub omits
// the email field on /user when the address is private, so the login flow
// falls back to this endpoint.
func (c *Client) PrimaryEmail(ctx context.Context, token string) (string, error) {
	body, err := c.get(ctx, "/user/emails", token)
	if err != nil {
		return "", err
	}

	var emails []struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", fmt.Errorf("%w: parse body: %v", ErrUnavailable, err)
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, nil
	}
	return "", nil
}

func (c *Client) getUser(ctx context.Context, path, token string) (*User, error) {
	body, err := c.get(ctx, path, token)
	if err != nil {
		return nil, err
	}

	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("%w: parse body: %v", ErrUnavailable, err)
	}
	if u.Login == "" {
		return nil, fmt.Errorf("%w: response missing login", ErrUnavailable)
	}
	return &u, nil
}

func (c *Client) get(ctx context.Context, path, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return body, nil
}

// Package client provides the Octodevs Go SDK for reading the published
// developer leaderboard and managing your own profile.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// ErrNotFound is returned for 404 responses on profile lookups.
var ErrNotFound = errors.New("profile not found")

// ErrUnauthorized is returned for 401 responses; set a session token with
// WithSessionToken.
var ErrUnauthorized = errors.New("unauthorized")

// Profile mirrors the API's profile representation.
type Profile struct {
	UserID    string    `json:"user_id"`
	GitHub    string    `json:"github"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	Bio       string    `json:"bio"`
	Location  string    `json:"location"`
	Website   string    `json:"website"`
	Twitter   string    `json:"twitter"`
	Followers int       `json:"followers"`
	Hireable  bool      `json:"hireable"`
	Published bool      `json:"published"`
	SyncedAt  time.Time `json:"synced_at"`
}

// Page is one page of the leaderboard. NextCursor is empty on the last page.
type Page struct {
	Profiles   []Profile `json:"profiles"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// Client is the Octodevs SDK entry point.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	sessionToken string
	cache        *listingCache
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client, overriding the default timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithSessionToken attaches a session JWT (from the OAuth login flow) to
// every request. Required for Me, Publish, and Unpublish.
func WithSessionToken(token string) Option {
	return func(c *Client) error {
		c.sessionToken = token
		return nil
	}
}

// WithCacheTTL enables in-memory caching of the full leaderboard with the
// given TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		c.cache = newListingCache(ttl)
		return nil
	}
}

// New creates a new Octodevs SDK Client connected to baseURL.
//
//	c, err := client.New("https://api.octodevs.com",
//	    client.WithCacheTTL(60*time.Second),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Profiles returns the full published leaderboard, sorted by followers.
func (c *Client) Profiles(ctx context.Context) ([]Profile, error) {
	if c.cache != nil {
		if ps, ok := c.cache.get(); ok {
			return ps, nil
		}
	}

	var payload struct {
		Profiles []Profile `json:"profiles"`
	}
	if err := c.get(ctx, "/api/v1/profiles", &payload); err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.set(payload.Profiles)
	}
	return payload.Profiles, nil
}

// ProfilesPage returns one page of the leaderboard. limit 0 uses the server
// default; cursor "" starts from the top.
func (c *Client) ProfilesPage(ctx context.Context, limit int, cursor string) (*Page, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := "/api/v1/profiles/paginated"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page Page
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// AllProfiles walks every page of the leaderboard and returns the
// concatenation. pageSize 0 uses the server default.
func (c *Client) AllProfiles(ctx context.Context, pageSize int) ([]Profile, error) {
	var all []Profile
	cursor := ""
	for {
		page, err := c.ProfilesPage(ctx, pageSize, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Profiles...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// Me returns the caller's own profile, published or not. Requires a session
// token.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.get(ctx, "/api/v1/profiles/me", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Publish creates or republishes the caller's profile from their GitHub
// account data. Requires a session token.
func (c *Client) Publish(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodPost, "/api/v1/profiles/publish", &p); err != nil {
		return nil, err
	}
	c.invalidate()
	return &p, nil
}

// Unpublish hides the caller's profile from the leaderboard. The profile
// data is retained and a later Publish restores it. Requires a session token.
func (c *Client) Unpublish(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodDelete, "/api/v1/profiles/publish", &p); err != nil {
		return nil, err
	}
	c.invalidate()
	return &p, nil
}

// Health checks the API's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, out)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		return fmt.Errorf("api returned HTTP %d: %s", resp.StatusCode, apiError(body))
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) invalidate() {
	if c.cache != nil {
		c.cache.clear()
	}
}

// apiError extracts the "error" field from an API error body, falling back
// to the raw body.
func apiError(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return string(body)
}

// --- simple in-memory listing cache ---

type listingCache struct {
	mu        sync.RWMutex
	profiles  []Profile
	expiresAt time.Time
	ttl       time.Duration
}

func newListingCache(ttl time.Duration) *listingCache {
	return &listingCache{ttl: ttl}
}

func (lc *listingCache) get() ([]Profile, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	if lc.profiles == nil || time.Now().After(lc.expiresAt) {
		return nil, false
	}
	return lc.profiles, true
}

func (lc *listingCache) set(ps []Profile) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.profiles = ps
	lc.expiresAt = time.Now().Add(lc.ttl)
}

func (lc *listingCache) clear() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.profiles = nil
}

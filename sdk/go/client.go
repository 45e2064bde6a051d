// Package wastetrack is a Go client for the WasteTrack authentication API.
// Other WasteTrack services use it to sign users in and to check access
// tokens on their own routes.
package wastetrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds the configuration for the client.
type Config struct {
	// BaseURL is the root URL of the WasteTrack API, e.g.
	// "https://api.wastetrack.example". The "/api/auth" prefix is added by
	// the client.
	BaseURL string

	// CacheTTL controls how long validated tokens are cached in memory.
	// Keep it well below the access token lifetime; a cached token is not
	// rechecked for blocks or credential changes. Set to a negative value to
	// disable caching. Default: 30 seconds
	CacheTTL time.Duration

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 10s timeout is used.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.CacheTTL == 0 {
		c.CacheTTL = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
}

// Client calls the WasteTrack authentication API.
type Client struct {
	cfg   Config
	cache *tokenCache
}

// NewClient creates a new client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:   cfg,
		cache: newTokenCache(),
	}
}

// ValidateToken checks an access token against the server and returns its
// account. Results are cached according to CacheTTL.
func (c *Client) ValidateToken(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	if c.cfg.CacheTTL > 0 {
		if acct, ok := c.cache.get(token); ok {
			return acct, nil
		}
	}

	var acct Account
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, bearer(token), &acct); err != nil {
		return nil, err
	}

	if c.cfg.CacheTTL > 0 {
		c.cache.set(token, &acct, c.cfg.CacheTTL)
	}
	return &acct, nil
}

// InvalidateToken removes a token from the local cache.
func (c *Client) InvalidateToken(token string) {
	c.cache.delete(token)
}

// Login authenticates with a username or email and a password.
func (c *Client) Login(ctx context.Context, identifier, password string) (*TokenResponse, error) {
	var resp TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, func(r *http.Request) {
		r.SetBasicAuth(identifier, password)
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates a citizen account and returns its first token pair.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshToken exchanges a refresh token for a new pair. The old refresh
// token cannot be used again.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var resp TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/refresh-token", map[string]string{
		"refreshToken": refreshToken,
	}, nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout ends the session of refreshToken. With an empty refreshToken every
// session of the account ends.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var payload any
	if refreshToken != "" {
		payload = map[string]string{"refreshToken": refreshToken}
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", payload, bearer(accessToken), nil); err != nil {
		return err
	}
	c.cache.delete(accessToken)
	return nil
}

// LogoutAll ends every session of the account.
func (c *Client) LogoutAll(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout-all", nil, bearer(accessToken), nil); err != nil {
		return err
	}
	c.cache.clear()
	return nil
}

// UpdateCredentials changes the email and/or password. The returned pair
// replaces every token held so far.
func (c *Client) UpdateCredentials(ctx context.Context, accessToken string, req CredentialsRequest) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.do(ctx, http.MethodPatch, "/api/auth/profile/credentials", req, bearer(accessToken), &resp); err != nil {
		return nil, err
	}
	c.cache.clear()
	return &resp, nil
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

// do sends a request and decodes a successful JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, payload any, prepare func(*http.Request), out any) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("wastetrack: failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("wastetrack: failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if prepare != nil {
		prepare(req)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("wastetrack: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("wastetrack: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("wastetrack: failed to parse response: %w", err)
	}
	return nil
}

// tokenCache provides in-memory caching for validated tokens. Expired
// entries are dropped on write.
type tokenCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	account   *Account
	expiresAt time.Time
}

func newTokenCache() *tokenCache {
	return &tokenCache{
		entries: make(map[string]*cacheEntry),
	}
}

func (tc *tokenCache) get(token string) (*Account, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	entry, ok := tc.entries[token]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.account, true
}

func (tc *tokenCache) set(token string, acct *Account, ttl time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	now := time.Now()
	for k, v := range tc.entries {
		if now.After(v.expiresAt) {
			delete(tc.entries, k)
		}
	}
	tc.entries[token] = &cacheEntry{
		account:   acct,
		expiresAt: now.Add(ttl),
	}
}

func (tc *tokenCache) delete(token string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	delete(tc.entries, token)
}

func (tc *tokenCache) clear() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.entries = make(map[string]*cacheEntry)
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// AuthProvider supplies authentication headers for MCP requests.
type AuthProvider interface {
	Headers(ctx context.Context) (map[string]string, error)
}

// StaticHeaders is an AuthProvider for fixed API key headers.
type StaticHeaders map[string]string

// Headers returns h.
func (h StaticHeaders) Headers(context.Context) (map[string]string, error) {
	return h, nil
}

// ClientCredentials obtains bearer tokens with the OAuth 2.0
// client_credentials grant. A token is reused until 80% of its lifetime has
// passed; if the refresh then fails, the old token is used until it expires.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	refreshAt time.Time
}

// NewClientCredentials creates a ClientCredentials provider.
func NewClientCredentials(cfg AuthConfig) *ClientCredentials {
	return &ClientCredentials{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Headers returns an Authorization header carrying a current token.
func (c *ClientCredentials) Headers(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.refreshAt) {
		return bearer(c.token), nil
	}

	token, lifetime, err := c.fetch(ctx)
	if err != nil {
		if c.token != "" && now.Before(c.expiresAt) {
			return bearer(c.token), nil
		}
		return nil, fmt.Errorf("acquiring oauth token: %w", err)
	}

	c.token = token
	c.expiresAt = now.Add(lifetime)
	c.refreshAt = now.Add(lifetime * 8 / 10)
	return bearer(token), nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (c *ClientCredentials) fetch(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
	}
	if len(c.Scopes) > 0 {
		form.Set("scope", strings.Join(c.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("token response has no access_token")
	}
	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}

// headerTransport sets static and provider headers on every request.
// Provider headers win over static ones.
type headerTransport struct {
	base     http.RoundTripper
	static   map[string]string
	provider AuthProvider
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.static {
		req.Header.Set(k, v)
	}
	if t.provider != nil {
		headers, err := t.provider.Headers(req.Context())
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// httpClientFor returns the client used to reach the server, or nil when
// the SDK default is enough.
func httpClientFor(cfg ServerConfig) *http.Client {
	var provider AuthProvider
	if cfg.Auth.Type == "oauth_client_credentials" {
		provider = NewClientCredentials(cfg.Auth)
	}
	if provider == nil && len(cfg.Headers) == 0 {
		return nil
	}
	return &http.Client{Transport: &headerTransport{
		base:     http.DefaultTransport,
		static:   cfg.Headers,
		provider: provider,
	}}
}

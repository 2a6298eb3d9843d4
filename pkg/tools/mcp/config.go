package mcp

import (
	"errors"
	"fmt"
	"time"

	"github.com/rhuss/steward/pkg/permission"
)

// Transport names accepted in ServerConfig.Transport.
const (
	TransportStreamable = "streamable-http"
	TransportSSE        = "sse"
)

// DefaultConnectTimeout bounds the connection handshake and discovery.
const DefaultConnectTimeout = 15 * time.Second

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name is the owner id of every descriptor the server contributes.
	Name string

	// Transport is "streamable-http" (default) or "sse".
	Transport string

	URL string

	// Headers are sent with every request.
	Headers map[string]string

	Auth AuthConfig

	// Visibility applies to every tool of the server. Empty means anchor.
	Visibility permission.Level

	// ToolVisibility overrides Visibility per tool name.
	ToolVisibility map[string]permission.Level

	// Destructive names tools that need confirmation even when the server
	// does not annotate them as destructive.
	Destructive []string

	ConnectTimeout time.Duration
}

// AuthConfig selects how the bridge authenticates to the server.
type AuthConfig struct {
	// Type is "" for none or "oauth_client_credentials".
	Type         string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Validate reports every problem with the configuration.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	switch c.Transport {
	case "", TransportStreamable, TransportSSE:
	default:
		errs = append(errs, fmt.Errorf("unsupported transport %q", c.Transport))
	}
	if c.Visibility != "" && !c.Visibility.Valid() {
		errs = append(errs, fmt.Errorf("unknown visibility %q", c.Visibility))
	}
	for tool, level := range c.ToolVisibility {
		if !level.Valid() {
			errs = append(errs, fmt.Errorf("tool %s: unknown visibility %q", tool, level))
		}
	}
	switch c.Auth.Type {
	case "":
	case "oauth_client_credentials":
		if c.Auth.TokenURL == "" || c.Auth.ClientID == "" {
			errs = append(errs, errors.New("oauth_client_credentials needs token_url and client_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported auth type %q", c.Auth.Type))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("mcp server %q: %w", c.Name, err)
	}
	return nil
}

func (c ServerConfig) visibilityFor(tool string) permission.Level {
	if level, ok := c.ToolVisibility[tool]; ok {
		return level
	}
	return c.Visibility
}

func (c ServerConfig) destructive(tool string) bool {
	for _, name := range c.Destructive {
		if name == tool {
			return true
		}
	}
	return false
}

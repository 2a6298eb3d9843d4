package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rhuss/steward/pkg/permission"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	tier := func(field string, l permission.Level) {
		if l != "" && !l.Valid() {
			add("%s: unknown tier %q", field, l)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !c.Server.HistoryTier.Valid() {
		add("server.history_tier must be one of anchor, trusted, public, got %q", c.Server.HistoryTier)
	}
	if c.Server.MaxBodySize <= 0 {
		add("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize)
	}

	if c.Engine.BackendURL == "" {
		add("engine.backend_url is required")
	}
	if c.Engine.Provider != "openai-compatible" {
		add("engine.provider must be \"openai-compatible\", got %q", c.Engine.Provider)
	}
	if c.Engine.StepLimit < 0 {
		add("engine.step_limit must be >= 0, got %d", c.Engine.StepLimit)
	}
	if c.Engine.HistoryLimit < 0 {
		add("engine.history_limit must be >= 0, got %d", c.Engine.HistoryLimit)
	}

	if err := c.Identity.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			add("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\"")
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			add("storage.sqlite.path is required when storage.type is \"sqlite\"")
		}
	default:
		add("storage.type must be \"memory\", \"postgres\" or \"sqlite\", got %q", c.Storage.Type)
	}

	for field, policy := range map[string]string{
		"registry.duplicate_policy": c.Registry.DuplicatePolicy,
		"confirmation.policy":       c.Confirmation.Policy,
	} {
		if policy != "overwrite" && policy != "reject" {
			add("%s must be \"overwrite\" or \"reject\", got %q", field, policy)
		}
	}

	if c.Bus.Timeout <= 0 {
		add("bus.timeout must be > 0, got %s", c.Bus.Timeout)
	}

	tier("auth.default_tier", c.Auth.DefaultTier)
	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			add("auth.api_keys must not be empty when auth.type is \"apikey\"")
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" {
				add("auth.api_keys[%d]: key or key_file is required", i)
			}
			if k.Subject == "" {
				add("auth.api_keys[%d]: subject is required", i)
			}
			tier(fmt.Sprintf("auth.api_keys[%d].tier", i), k.Tier)
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			add("auth.jwt.jwks_url is required when auth.type is \"jwt\"")
		}
		for claim, l := range c.Auth.JWT.TierMapping {
			tier("auth.jwt.tier_mapping."+claim, l)
		}
	default:
		add("auth.type must be \"none\", \"apikey\" or \"jwt\", got %q", c.Auth.Type)
	}
	for l := range c.Auth.RateLimit.Tiers {
		tier("auth.rate_limit.tiers", l)
	}

	seen := make(map[string]bool)
	for i, s := range c.MCP.Servers {
		field := fmt.Sprintf("mcp.servers[%d]", i)
		if s.Name == "" {
			add("%s.name is required", field)
		} else if seen[s.Name] {
			add("%s.name %q is used twice", field, s.Name)
		}
		seen[s.Name] = true
		if s.URL == "" {
			add("%s.url is required", field)
		}
		switch s.Transport {
		case "", "sse", "streamable-http":
		default:
			add("%s.transport must be \"sse\" or \"streamable-http\", got %q", field, s.Transport)
		}
		tier(field+".visibility", s.Visibility)
		for tool, l := range s.ToolVisibility {
			tier(field+".tool_visibility."+tool, l)
		}
	}

	if !strings.EqualFold(c.Logging.Level, "trace") {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
			add("logging.level: %v", err)
		}
	}
	switch c.Logging.Format {
	case "text", "json", "console":
	default:
		add("logging.format must be \"text\", \"json\" or \"console\", got %q", c.Logging.Format)
	}

	return errors.Join(errs...)
}

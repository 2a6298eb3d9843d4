// Package config provides unified configuration for the steward server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. Config file, YAML or TOML by extension (discovered or explicitly specified)
//  3. .env file (never overrides variables already set)
//  4. Environment variable overrides (STEWARD_ prefix)
//  5. File reference resolution (_file suffix fields)
//  6. Validation
package config

import (
	"time"

	"github.com/rhuss/steward/pkg/identity"
	"github.com/rhuss/steward/pkg/permission"
)

// Config holds all configuration for the steward server.
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Engine        EngineConfig        `yaml:"engine" toml:"engine"`
	Identity      identity.Identity   `yaml:"identity" toml:"identity"`
	Storage       StorageConfig       `yaml:"storage" toml:"storage"`
	Registry      RegistryConfig      `yaml:"registry" toml:"registry"`
	Confirmation  ConfirmationConfig  `yaml:"confirmation" toml:"confirmation"`
	Bus           BusConfig           `yaml:"bus" toml:"bus"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	MCP           MCPConfig           `yaml:"mcp" toml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port" toml:"port"`                               // default: 8080
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" toml:"read_header_timeout"` // default: 10s
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`       // default: 30s
	MaxBodySize       int64         `yaml:"max_body_size" toml:"max_body_size"`             // default: 1 MiB
	MCPPath           string        `yaml:"mcp_path" toml:"mcp_path"`                       // default: "/mcp", "-" disables

	// HistoryTier is the tier needed to read conversation transcripts.
	HistoryTier permission.Level `yaml:"history_tier" toml:"history_tier"` // default: anchor
}

// EngineConfig holds orchestrator and model provider settings.
type EngineConfig struct {
	Provider          string              `yaml:"provider" toml:"provider"`       // default: "openai-compatible"
	BackendURL        string              `yaml:"backend_url" toml:"backend_url"` // required
	APIKey            string              `yaml:"api_key" toml:"api_key"`
	APIKeyFile        string              `yaml:"api_key_file" toml:"api_key_file"`
	Model             string              `yaml:"model" toml:"model"`
	ModelMapping      map[string]string   `yaml:"model_mapping" toml:"model_mapping"`
	ToolCalling       *bool               `yaml:"tool_calling" toml:"tool_calling"`       // default: true
	RequestTimeout    time.Duration       `yaml:"request_timeout" toml:"request_timeout"` // default: 120s
	StepLimit         int                 `yaml:"step_limit" toml:"step_limit"`           // default: 10
	HistoryLimit      int                 `yaml:"history_limit" toml:"history_limit"`     // default: 50
	TurnTimeout       time.Duration       `yaml:"turn_timeout" toml:"turn_timeout"`       // default: 5m, negative disables
	ParallelToolCalls bool                `yaml:"parallel_tool_calls" toml:"parallel_tool_calls"`
	Temperature       *float64            `yaml:"temperature" toml:"temperature"`
	MaxTokens         *int                `yaml:"max_tokens" toml:"max_tokens"`
	DenyByInterface   map[string][]string `yaml:"deny_by_interface" toml:"deny_by_interface"`
}

// StorageConfig holds conversation history settings.
type StorageConfig struct {
	Type     string         `yaml:"type" toml:"type"`           // "memory", "postgres" or "sqlite", default: "memory"
	MaxSize  int            `yaml:"max_size" toml:"max_size"`   // memory: conversations kept, default: 10000
	MaxTurns int            `yaml:"max_turns" toml:"max_turns"` // memory: turns kept per conversation, 0 = unbounded
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite" toml:"sqlite"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn" toml:"dsn"`
	DSNFile        string `yaml:"dsn_file" toml:"dsn_file"`
	MaxConns       int32  `yaml:"max_conns" toml:"max_conns"` // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start" toml:"migrate_on_start"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"` // default: "steward.db"
}

// RegistryConfig holds tool registry settings.
type RegistryConfig struct {
	DuplicatePolicy string `yaml:"duplicate_policy" toml:"duplicate_policy"` // "overwrite" or "reject"
}

// ConfirmationConfig holds pending confirmation settings.
type ConfirmationConfig struct {
	Policy string `yaml:"policy" toml:"policy"` // "overwrite" or "reject"
}

// BusConfig holds settings of the in-process invocation bus.
type BusConfig struct {
	Timeout     time.Duration `yaml:"timeout" toml:"timeout"`           // default: 30s
	MailboxSize int           `yaml:"mailbox_size" toml:"mailbox_size"` // default: 64
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type        string           `yaml:"type" toml:"type"` // "none", "apikey" or "jwt", default: "none"
	DefaultTier permission.Level `yaml:"default_tier" toml:"default_tier"`
	APIKeys     []APIKeyConfig   `yaml:"api_keys" toml:"api_keys"`
	JWT         JWTConfig        `yaml:"jwt" toml:"jwt"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit" toml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key      string           `yaml:"key" toml:"key" json:"key"`
	KeyFile  string           `yaml:"key_file" toml:"key_file" json:"key_file"`
	Subject  string           `yaml:"subject" toml:"subject" json:"subject"`
	TenantID string           `yaml:"tenant_id" toml:"tenant_id" json:"tenant_id"`
	Tier     permission.Level `yaml:"tier" toml:"tier" json:"tier"`
}

// JWTConfig holds JWT validation settings.
type JWTConfig struct {
	Issuer      string                      `yaml:"issuer" toml:"issuer"`
	Audience    string                      `yaml:"audience" toml:"audience"`
	JWKSURL     string                      `yaml:"jwks_url" toml:"jwks_url"`
	TierClaim   string                      `yaml:"tier_claim" toml:"tier_claim"` // default: "tier"
	TierMapping map[string]permission.Level `yaml:"tier_mapping" toml:"tier_mapping"`
	CacheTTL    time.Duration               `yaml:"cache_ttl" toml:"cache_ttl"`
}

// RateLimitConfig holds per-tier request limits.
type RateLimitConfig struct {
	Enabled    bool                     `yaml:"enabled" toml:"enabled"`
	DefaultRPM int                      `yaml:"default_rpm" toml:"default_rpm"`
	Tiers      map[permission.Level]int `yaml:"tiers" toml:"tiers"`
}

// MCPConfig holds MCP settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers" toml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name           string                      `yaml:"name" toml:"name" json:"name"`
	Transport      string                      `yaml:"transport" toml:"transport" json:"transport"` // "sse" or "streamable-http"
	URL            string                      `yaml:"url" toml:"url" json:"url"`
	Headers        map[string]string           `yaml:"headers" toml:"headers" json:"headers,omitempty"`
	Visibility     permission.Level            `yaml:"visibility" toml:"visibility" json:"visibility,omitempty"`
	ToolVisibility map[string]permission.Level `yaml:"tool_visibility" toml:"tool_visibility" json:"tool_visibility,omitempty"`
	Destructive    []string                    `yaml:"destructive" toml:"destructive" json:"destructive,omitempty"`
	Auth           MCPAuthConfig               `yaml:"auth" toml:"auth" json:"auth"`
}

// MCPAuthConfig holds authentication settings for one MCP server.
type MCPAuthConfig struct {
	Type             string   `yaml:"type" toml:"type" json:"type"` // "" or "oauth_client_credentials"
	TokenURL         string   `yaml:"token_url" toml:"token_url" json:"token_url"`
	ClientID         string   `yaml:"client_id" toml:"client_id" json:"client_id"`
	ClientIDFile     string   `yaml:"client_id_file" toml:"client_id_file" json:"client_id_file"`
	ClientSecret     string   `yaml:"client_secret" toml:"client_secret" json:"client_secret"`
	ClientSecretFile string   `yaml:"client_secret_file" toml:"client_secret_file" json:"client_secret_file"`
	Scopes           []string `yaml:"scopes" toml:"scopes" json:"scopes"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"` // default: true
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // "debug", "info", "warn", "error", default: "info"
	Format string `yaml:"format" toml:"format"` // "text", "json" or "console", default: "text"
	Debug  string `yaml:"debug" toml:"debug"`   // debug categories, same syntax as STEWARD_DEBUG
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			MaxBodySize:       1 << 20,
			MCPPath:           "/mcp",
			HistoryTier:       permission.Anchor,
		},
		Engine: EngineConfig{
			Provider:       "openai-compatible",
			RequestTimeout: 120 * time.Second,
			StepLimit:      10,
			HistoryLimit:   50,
			TurnTimeout:    5 * time.Minute,
		},
		Identity: identity.Static(identity.Default).Identity(),
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
			SQLite: SQLiteConfig{
				Path: "steward.db",
			},
		},
		Registry: RegistryConfig{
			DuplicatePolicy: "overwrite",
		},
		Confirmation: ConfirmationConfig{
			Policy: "overwrite",
		},
		Bus: BusConfig{
			Timeout:     30 * time.Second,
			MailboxSize: 64,
		},
		Auth: AuthConfig{
			Type:        "none",
			DefaultTier: permission.Default,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

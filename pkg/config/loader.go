package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rhuss/steward/pkg/permission"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. Config file (explicit path, STEWARD_CONFIG env, ./config.yaml, ./config.toml, /etc/steward/config.yaml)
//  3. .env file (STEWARD_ENV_FILE or ./.env)
//  4. STEWARD_* environment variable overrides
//  5. File reference resolution (_file suffix)
//  6. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if filePath := discoverConfigFile(configPath); filePath != "" {
		if err := loadFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. STEWARD_CONFIG environment variable
// 3. ./config.yaml, ./config.toml in the current directory
// 4. /etc/steward/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("STEWARD_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "config.toml", "/etc/steward/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadFile parses a YAML or TOML file into cfg. Fields not present in the
// file keep their current values; unknown keys are an error.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return nil
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
}

// loadDotEnv loads STEWARD_ENV_FILE, or ./.env when present. Variables that
// are already set keep their values.
func loadDotEnv() error {
	path := os.Getenv("STEWARD_ENV_FILE")
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	return godotenv.Load(path)
}

// envVar binds one environment variable to a config field.
type envVar struct {
	name string
	set  func(cfg *Config, v string) error
}

var envVars = []envVar{
	{"STEWARD_PORT", func(c *Config, v string) error { return setInt(&c.Server.Port, v) }},
	{"STEWARD_SHUTDOWN_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Server.ShutdownTimeout, v) }},
	{"STEWARD_MCP_PATH", func(c *Config, v string) error { c.Server.MCPPath = v; return nil }},

	{"STEWARD_BACKEND_URL", func(c *Config, v string) error { c.Engine.BackendURL = v; return nil }},
	{"STEWARD_API_KEY", func(c *Config, v string) error { c.Engine.APIKey = v; return nil }},
	{"STEWARD_MODEL", func(c *Config, v string) error { c.Engine.Model = v; return nil }},
	{"STEWARD_STEP_LIMIT", func(c *Config, v string) error { return setInt(&c.Engine.StepLimit, v) }},
	{"STEWARD_HISTORY_LIMIT", func(c *Config, v string) error { return setInt(&c.Engine.HistoryLimit, v) }},
	{"STEWARD_TURN_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Engine.TurnTimeout, v) }},

	{"STEWARD_STORAGE", func(c *Config, v string) error { c.Storage.Type = v; return nil }},
	{"STEWARD_STORAGE_SIZE", func(c *Config, v string) error { return setInt(&c.Storage.MaxSize, v) }},
	{"STEWARD_POSTGRES_DSN", func(c *Config, v string) error { c.Storage.Postgres.DSN = v; return nil }},
	{"STEWARD_SQLITE_PATH", func(c *Config, v string) error { c.Storage.SQLite.Path = v; return nil }},

	{"STEWARD_DUPLICATE_POLICY", func(c *Config, v string) error { c.Registry.DuplicatePolicy = v; return nil }},
	{"STEWARD_CONFIRMATION_POLICY", func(c *Config, v string) error { c.Confirmation.Policy = v; return nil }},
	{"STEWARD_BUS_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Bus.Timeout, v) }},

	{"STEWARD_AUTH_TYPE", func(c *Config, v string) error { c.Auth.Type = v; return nil }},
	{"STEWARD_DEFAULT_TIER", func(c *Config, v string) error { c.Auth.DefaultTier = permission.Level(v); return nil }},
	{"STEWARD_JWKS_URL", func(c *Config, v string) error { c.Auth.JWT.JWKSURL = v; return nil }},
	{"STEWARD_API_KEYS", func(c *Config, v string) error { return setJSON(&c.Auth.APIKeys, v) }},
	{"STEWARD_MCP_SERVERS", func(c *Config, v string) error { return setJSON(&c.MCP.Servers, v) }},

	{"STEWARD_LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"STEWARD_LOG_FORMAT", func(c *Config, v string) error { c.Logging.Format = v; return nil }},
}

// applyEnvOverrides maps STEWARD_* environment variables to config fields.
// Every malformed value is reported.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for _, ev := range envVars {
		v, ok := os.LookupEnv(ev.name)
		if !ok || v == "" {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ev.name, err))
		}
	}
	return errors.Join(errs...)
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("not an integer: %q", v)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func setJSON[T any](dst *T, v string) error {
	var out T
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	*dst = out
	return nil
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields when those are empty.
func resolveFileReferences(cfg *Config) error {
	var errs []error
	resolve := func(field string, file string, dst *string) {
		if file == "" || *dst != "" {
			return
		}
		val, err := readSecretFile(file)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = val
	}

	resolve("engine.api_key_file", cfg.Engine.APIKeyFile, &cfg.Engine.APIKey)
	resolve("storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN)
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		resolve(fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key)
	}
	for i := range cfg.MCP.Servers {
		a := &cfg.MCP.Servers[i].Auth
		resolve(fmt.Sprintf("mcp.servers[%d].auth.client_id_file", i), a.ClientIDFile, &a.ClientID)
		resolve(fmt.Sprintf("mcp.servers[%d].auth.client_secret_file", i), a.ClientSecretFile, &a.ClientSecret)
	}
	return errors.Join(errs...)
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

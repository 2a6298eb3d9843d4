package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/rhuss/steward/pkg/auth"
	"github.com/rhuss/steward/pkg/auth/apikey"
	"github.com/rhuss/steward/pkg/auth/jwt"
	"github.com/rhuss/steward/pkg/auth/noop"
	"github.com/rhuss/steward/pkg/config"
	"github.com/rhuss/steward/pkg/permission"
	"github.com/rhuss/steward/pkg/provider"
	"github.com/rhuss/steward/pkg/storage"
	"github.com/rhuss/steward/pkg/storage/memory"
	"github.com/rhuss/steward/pkg/storage/postgres"
	"github.com/rhuss/steward/pkg/storage/sqlite"
)

// newHistoryStore opens the configured history backend.
func newHistoryStore(ctx context.Context, cfg config.StorageConfig) (storage.HistoryStore, error) {
	switch cfg.Type {
	case "memory":
		var opts []memory.Option
		if cfg.MaxTurns > 0 {
			opts = append(opts, memory.WithMaxTurns(cfg.MaxTurns))
		}
		return memory.New(cfg.MaxSize, opts...), nil
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
	case "sqlite":
		return sqlite.New(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// unauthenticatedPaths skip the auth chain.
var unauthenticatedPaths = []string{"/healthz", "/metrics"}

// authenticate wraps next with the configured auth chain and rate limiter.
// With "apikey" or "jwt", requests without credentials are rejected; "none"
// admits everyone at the default tier.
func authenticate(cfg config.AuthConfig, next http.Handler) (http.Handler, error) {
	chain := &auth.AuthChain{DefaultDecision: auth.No, DefaultTier: cfg.DefaultTier}

	switch cfg.Type {
	case "none":
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{Tier: cfg.DefaultTier}}
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			id := auth.Identity{Subject: k.Subject, Tier: k.Tier.OrDefault()}
			if k.TenantID != "" {
				id.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: id})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(entries)}
	case "jwt":
		chain.Authenticators = []auth.Authenticator{jwt.New(jwt.Config{
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			JWKSURL:     cfg.JWT.JWKSURL,
			TierClaim:   cfg.JWT.TierClaim,
			TierMapping: cfg.JWT.TierMapping,
			DefaultTier: cfg.DefaultTier,
			CacheTTL:    cfg.JWT.CacheTTL,
		})}
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	var limiter auth.RateLimiter
	if cfg.RateLimit.Enabled {
		tiers := make(map[permission.Level]auth.TierConfig, len(cfg.RateLimit.Tiers))
		for level, rpm := range cfg.RateLimit.Tiers {
			tiers[level] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, cfg.RateLimit.DefaultRPM)
	}

	return auth.Middleware(chain, limiter, unauthenticatedPaths)(next), nil
}

// checkModel warns when the backend does not list the configured model.
// The backend being down at startup is not fatal; turns fail until it is up.
func checkModel(ctx context.Context, prov provider.Provider, model string, logger *slog.Logger) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	models, err := prov.ListModels(ctx)
	if err != nil {
		logger.Warn("model backend not reachable", "provider", prov.Name(), "error", err)
		return false
	}
	if !slices.ContainsFunc(models, func(m provider.ModelInfo) bool { return m.ID == model }) {
		logger.Warn("configured model not served by backend", "model", model, "available", len(models))
		return false
	}
	return true
}

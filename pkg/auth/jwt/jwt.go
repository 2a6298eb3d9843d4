// Package jwt authenticates RSA-signed bearer JWTs against a JWKS endpoint
// and derives the caller tier from a configurable claim.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/steward/pkg/auth"
	"github.com/rhuss/steward/pkg/permission"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer and Audience are validated when set.
	Issuer   string
	Audience string

	// JWKSURL serves the keys used to verify signatures.
	JWKSURL string

	// Claim names. Defaults: "sub", "tenant_id", "scope", "tier".
	UserClaim   string
	TenantClaim string
	ScopesClaim string
	TierClaim   string

	// TierMapping maps claim values (for example group names) to tiers.
	// Values without a mapping must be tier names themselves. When the
	// claim holds several values the most trusted tier wins.
	TierMapping map[string]permission.Level

	// DefaultTier applies when the token has no tier claim. Empty means
	// permission.Default.
	DefaultTier permission.Level

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient fetches the JWKS. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	c.DefaultTier = c.DefaultTier.OrDefault()
}

var errUnknownTier = errors.New("unknown tier")

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config Config
	keys   *jwksCache
}

// New creates a JWT authenticator.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()
	return &Authenticator{
		config: cfg,
		keys:   newJWKSCache(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL),
	}
}

// Authenticate abstains without a bearer token. A bearer token that fails
// verification, lacks a subject, or names an unknown tier is a No.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	tokenStr, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if tokenStr == "" {
		return deny(errors.New("empty bearer token"))
	}

	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return a.keys.key(ctx, kid)
	}, a.parserOptions()...)
	if err != nil {
		slog.Debug("JWT validation failed", "error", err)
		return deny(fmt.Errorf("invalid JWT: %w", err))
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return deny(errors.New("invalid JWT claims"))
	}

	subject := claimString(claims, a.config.UserClaim)
	if subject == "" {
		return deny(fmt.Errorf("JWT missing %q claim", a.config.UserClaim))
	}

	tier, err := a.tier(claims)
	if err != nil {
		return deny(err)
	}

	id := &auth.Identity{
		Subject:  subject,
		Tier:     tier,
		Scopes:   claimStrings(claims, a.config.ScopesClaim),
		Metadata: make(map[string]string),
	}
	if tenant := claimString(claims, a.config.TenantClaim); tenant != "" {
		id.Metadata["tenant_id"] = tenant
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: id}
}

func deny(err error) auth.AuthResult {
	return auth.AuthResult{Decision: auth.No, Err: err}
}

func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithExpirationRequired(),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.config.Audience))
	}
	return opts
}

// tier resolves the tier claim. Every value must map to a known tier.
func (a *Authenticator) tier(claims jwtlib.MapClaims) (permission.Level, error) {
	values := claimStrings(claims, a.config.TierClaim)
	if len(values) == 0 {
		return a.config.DefaultTier, nil
	}

	var best permission.Level
	for _, v := range values {
		level, ok := a.config.TierMapping[v]
		if !ok {
			level = permission.Level(v)
		}
		if !level.Valid() {
			if len(a.config.TierMapping) > 0 {
				// Unmapped groups are ignored when a mapping is configured.
				continue
			}
			return "", fmt.Errorf("JWT %q claim: %w %q", a.config.TierClaim, errUnknownTier, v)
		}
		if best == "" || permission.HasPermission(level, best) {
			best = level
		}
	}
	if best == "" {
		return a.config.DefaultTier, nil
	}
	return best, nil
}

func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// claimStrings reads a claim that is either a space separated string or an
// array of strings.
func claimStrings(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		if parts := strings.Fields(v); len(parts) > 0 {
			return parts
		}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

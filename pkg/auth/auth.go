package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rhuss/steward/pkg/permission"
)

// AuthDecision is the vote of one authenticator.
type AuthDecision int

const (
	// Yes means the credentials are valid; the chain stops.
	Yes AuthDecision = iota

	// No means credentials are present but invalid; the request is rejected.
	No

	// Abstain passes the request to the next authenticator.
	Abstain
)

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // set when Decision == Yes
	Err      error     // set when Decision == No
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject uniquely identifies the caller. Must not be empty.
	Subject string

	// Tier is the caller's permission level. Empty means permission.Default.
	Tier permission.Level

	Scopes []string

	// Metadata carries authenticator specific data. "tenant_id" scopes
	// conversation history.
	Metadata map[string]string
}

// Level returns the caller's permission level.
func (id *Identity) Level() permission.Level {
	if id == nil {
		return permission.Default
	}
	return id.Tier.OrDefault()
}

// TenantID returns the tenant identifier from metadata, or "".
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// Authenticator examines request credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AnonymousSubject is the subject of callers admitted by default.
const AnonymousSubject = "anonymous"

// AuthChain evaluates authenticators in order.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when every authenticator abstains. Yes admits
	// the caller anonymously at DefaultTier.
	DefaultDecision AuthDecision

	// DefaultTier is the tier of anonymous callers. Empty means
	// permission.Default.
	DefaultTier permission.Level
}

// Authenticate runs the chain and stops on the first Yes or No.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		if result := authn.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}

	if c.DefaultDecision == Yes {
		return AuthResult{
			Decision: Yes,
			Identity: &Identity{Subject: AnonymousSubject, Tier: c.DefaultTier.OrDefault()},
		}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}

// Package noop provides an authenticator that admits every request. It is
// meant for local development.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/steward/pkg/auth"
	"github.com/rhuss/steward/pkg/permission"
)

// Authenticator admits every request as an anonymous caller at Tier.
type Authenticator struct {
	// Tier is the level given to every caller. Empty means
	// permission.Default.
	Tier permission.Level
}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject: auth.AnonymousSubject,
			Tier:    a.Tier.OrDefault(),
		},
	}
}

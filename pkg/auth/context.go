package auth

import (
	"context"

	"github.com/rhuss/steward/pkg/permission"
)

type identityKey struct{}

// SetIdentity stores the authenticated identity in the context.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the authenticated identity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return v
	}
	return nil
}

// LevelFromContext returns the caller's permission level. Requests without
// an identity get permission.Default.
func LevelFromContext(ctx context.Context) permission.Level {
	return IdentityFromContext(ctx).Level()
}

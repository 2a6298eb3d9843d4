package storage

import "context"

// tenantKey is the private context key type for the tenant id.
type tenantKey struct{}

// SetTenant injects a tenant identifier into the context. History stores
// use it to namespace conversation ids.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// GetTenant extracts the tenant identifier from the context.
// Returns an empty string if no tenant is set (single-tenant mode).
func GetTenant(ctx context.Context) string {
	if v, ok := ctx.Value(tenantKey{}).(string); ok {
		return v
	}
	return ""
}

package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/observability"
	"github.com/rhuss/steward/pkg/storage"
)

// DefaultBypassEndpoints skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// Middleware authenticates every request not in bypassEndpoints, applies the
// rate limiter when one is given, and stores the identity and tenant in the
// request context.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)
			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				writeError(w, http.StatusUnauthorized, &api.APIError{
					Type:    api.ErrorTypeInvalidRequest,
					Code:    "unauthenticated",
					Message: ErrUnauthenticated.Error(),
				})
				return
			}

			id := result.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				writeError(w, http.StatusInternalServerError, api.NewServerError("internal authentication error"))
				return
			}
			if !id.Level().Valid() {
				slog.Error("authenticator returned identity with unknown tier", "subject", id.Subject, "tier", id.Tier)
				writeError(w, http.StatusForbidden, api.NewForbiddenError(ErrForbidden.Error()))
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.Level())
					observability.RateLimitRejectedTotal.WithLabelValues(string(id.Level())).Inc()
					writeError(w, http.StatusTooManyRequests, api.NewTooManyRequestsError(err.Error()))
					return
				}
			}

			slog.Debug("authenticated", "subject", id.Subject, "tier", id.Level(), "path", r.URL.Path)

			ctx := SetIdentity(r.Context(), id)
			if tenantID := id.TenantID(); tenantID != "" {
				ctx = storage.SetTenant(ctx, tenantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, apiErr *api.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/steward/pkg/api"
)

// RequestID makes sure every turn carries a request id, keeping one set by
// the HTTP layer from X-Request-ID.
func RequestID() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *ChatRequest) (*api.AgentResponse, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.Chat(ctx, req)
		})
	}
}

// NewRequestID returns a random request id.
func NewRequestID() string {
	return "req_" + uuid.NewString()
}

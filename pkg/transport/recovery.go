package transport

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/rhuss/steward/pkg/api"
)

// Recovery turns a panic during a turn into a server error. The panic value
// is logged, never returned to the caller.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *ChatRequest) (resp *api.AgentResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic during chat turn",
						"panic", r,
						"conversation_id", req.ConversationID,
						"request_id", RequestIDFromContext(ctx),
						"stack", string(debug.Stack()),
					)
					resp = nil
					err = api.NewServerError("internal server error")
				}
			}()
			return next.Chat(ctx, req)
		})
	}
}

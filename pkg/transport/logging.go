package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/steward/pkg/api"
)

// Logging logs one line per turn.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *ChatRequest) (*api.AgentResponse, error) {
			start := time.Now()
			resp, err := next.Chat(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("conversation_id", req.ConversationID),
				slog.String("tier", string(req.Call.Level)),
				slog.String("interface", req.Call.Interface),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "chat turn failed", attrs...)
				return nil, err
			}
			attrs = append(attrs,
				slog.Int("tool_calls", len(resp.ToolResults)),
				slog.Int("total_tokens", resp.Usage.TotalTokens),
				slog.Bool("pending_confirmation", resp.PendingConfirmation != nil),
			)
			logger.LogAttrs(ctx, slog.LevelInfo, "chat turn completed", attrs...)
			return resp, nil
		})
	}
}

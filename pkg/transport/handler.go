package transport

import (
	"context"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/permission"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/tools/registry"
)

// Service is the set of engine operations exposed by transports.
type Service interface {
	Chat(ctx context.Context, message, conversationID string, call *tools.CallContext) (*api.AgentResponse, error)
	ConfirmPendingAction(ctx context.Context, conversationID string, confirmed bool, call *tools.CallContext) (*api.AgentResponse, error)
	SetPendingConfirmation(conversationID string, p api.PendingConfirmation) error
	ListToolsForLevel(level permission.Level) []registry.ToolEntry
	ListResources() []registry.ResourceEntry
	ReadResource(ctx context.Context, uri string, call tools.CallContext) (*tools.ResourceContent, error)
	History(ctx context.Context, conversationID string, limit int) ([]api.Turn, error)
}

// ChatRequest is one chat turn as seen by the middleware chain.
type ChatRequest struct {
	ConversationID string
	Message        string

	// Call is built by the transport from the authenticated caller.
	Call tools.CallContext
}

// ChatHandler runs one chat turn.
type ChatHandler interface {
	Chat(ctx context.Context, req *ChatRequest) (*api.AgentResponse, error)
}

// ChatHandlerFunc adapts a function to a ChatHandler.
type ChatHandlerFunc func(ctx context.Context, req *ChatRequest) (*api.AgentResponse, error)

// Chat calls f(ctx, req).
func (f ChatHandlerFunc) Chat(ctx context.Context, req *ChatRequest) (*api.AgentResponse, error) {
	return f(ctx, req)
}

// ServiceChat adapts the Chat operation of svc to a ChatHandler.
func ServiceChat(svc Service) ChatHandler {
	return ChatHandlerFunc(func(ctx context.Context, req *ChatRequest) (*api.AgentResponse, error) {
		call := req.Call
		return svc.Chat(ctx, req.Message, req.ConversationID, &call)
	})
}

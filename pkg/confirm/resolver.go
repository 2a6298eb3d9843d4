package confirm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/observability"
	"github.com/rhuss/steward/pkg/permission"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/tools/registry"
)

// Texts returned to the caller. They are ordinary conversation outcomes,
// not errors.
const (
	TextNothingPending = "There is no pending action to confirm."
	cancelledFormat    = "Action cancelled: %s"
	unavailableFormat  = "Cannot complete %s: tool %s is no longer available."
	completedFormat    = "Completed: %s\n\n%s"
	failedFormat       = "Failed to complete %s: %s"
)

// Lister returns every registered tool regardless of visibility.
type Lister interface {
	List() []registry.ToolEntry
}

// Invoker executes a tool by name.
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage, call tools.CallContext) (*tools.Result, error)
}

// History records the outcome in the conversation.
type History interface {
	AddMessage(ctx context.Context, conversationID string, role api.Role, content string) error
}

// Resolver turns a user's yes or no into execution or cancellation of the
// pending action.
type Resolver struct {
	store   *Store
	lister  Lister
	invoker Invoker
	history History
	logger  *slog.Logger
}

// NewResolver creates a Resolver. A nil logger uses slog.Default().
func NewResolver(store *Store, lister Lister, invoker Invoker, history History, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:   store,
		lister:  lister,
		invoker: invoker,
		history: history,
		logger:  logger,
	}
}

// Confirm resolves the pending confirmation of the conversation on behalf
// of the caller described by call. The caller must be at least as trusted
// as the turn that created the confirmation and may see the tool; otherwise
// the entry stays pending and the error wraps tools.ErrForbidden. An
// accepted entry is consumed before anything else happens, so a repeated
// call sees nothing pending. The tool is looked up in the unfiltered
// listing and invoked at the caller's level.
func (r *Resolver) Confirm(ctx context.Context, conversationID string, confirmed bool, call tools.CallContext) (*api.AgentResponse, error) {
	level := call.Level.OrDefault()
	pending, found, taken := r.store.TakeIf(conversationID, func(p api.PendingConfirmation) bool {
		return r.mayResolve(level, p)
	})
	if !found {
		observability.ConfirmationsTotal.WithLabelValues("none").Inc()
		return &api.AgentResponse{
			ConversationID: conversationID,
			Text:           TextNothingPending,
			ToolResults:    []api.ToolResult{},
		}, nil
	}
	if !taken {
		observability.ConfirmationsTotal.WithLabelValues("forbidden").Inc()
		r.logger.Warn("confirmation refused for caller level",
			"conversation_id", conversationID,
			"tool", pending.ToolName,
			"tier", level,
			"required", pending.Required(),
		)
		return nil, fmt.Errorf("resolving the pending action requires the %s tier: %w", pending.Required(), tools.ErrForbidden)
	}

	logger := r.logger.With("conversation_id", conversationID, "tool", pending.ToolName)
	resp := &api.AgentResponse{ConversationID: conversationID, ToolResults: []api.ToolResult{}}

	switch {
	case !confirmed:
		observability.ConfirmationsTotal.WithLabelValues("declined").Inc()
		logger.Info("pending action declined")
		resp.Text = fmt.Sprintf(cancelledFormat, pending.Description)

	case !r.isRegistered(pending.ToolName):
		observability.ConfirmationsTotal.WithLabelValues("unavailable").Inc()
		logger.Warn("confirmed tool is no longer registered")
		resp.Text = fmt.Sprintf(unavailableFormat, pending.Description, pending.ToolName)

	default:
		internal := tools.CallContext{
			Level:          level,
			ConversationID: conversationID,
			ChannelID:      call.ChannelID,
			ChannelName:    call.ChannelName,
			Interface:      tools.InterfaceConfirmation,
			UserID:         call.UserID,
		}
		entry := api.ToolResult{ToolName: pending.ToolName, Arguments: pending.Args}
		result, err := r.invoker.Invoke(ctx, pending.ToolName, pending.Args, internal)
		if err != nil {
			observability.ConfirmationsTotal.WithLabelValues("failed").Inc()
			logger.Warn("confirmed action failed", "error", err)
			entry.Error = err.Error()
			resp.Text = fmt.Sprintf(failedFormat, pending.Description, err.Error())
		} else {
			observability.ConfirmationsTotal.WithLabelValues("completed").Inc()
			logger.Info("confirmed action completed")
			entry.Output = result.Data
			entry.Text = result.Text
			resp.Text = fmt.Sprintf(completedFormat, pending.Description, result.String())
		}
		resp.ToolResults = append(resp.ToolResults, entry)
	}

	if err := r.history.AddMessage(ctx, conversationID, api.RoleAssistant, resp.Text); err != nil {
		return nil, fmt.Errorf("recording confirmation outcome: %w", err)
	}
	return resp, nil
}

func (r *Resolver) lookup(name string) (registry.ToolEntry, bool) {
	for _, e := range r.lister.List() {
		if e.Tool.Name == name {
			return e, true
		}
	}
	return registry.ToolEntry{}, false
}

func (r *Resolver) isRegistered(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// mayResolve reports whether a caller at level may accept or decline p. A
// tool that is gone no longer constrains the caller; the outcome is then
// the unavailable text.
func (r *Resolver) mayResolve(level permission.Level, p api.PendingConfirmation) bool {
	if !permission.HasPermission(level, p.Required()) {
		return false
	}
	if e, ok := r.lookup(p.ToolName); ok && !permission.HasPermission(level, e.Visibility()) {
		return false
	}
	return true
}

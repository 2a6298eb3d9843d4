package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/confirm"
	"github.com/rhuss/steward/pkg/identity"
	"github.com/rhuss/steward/pkg/observability"
	"github.com/rhuss/steward/pkg/permission"
	"github.com/rhuss/steward/pkg/storage"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/tools/registry"
)

// Catalog is the registry view the engine needs.
type Catalog interface {
	LevelLister
	List() []registry.ToolEntry
	ListResources() []registry.ResourceEntry
	LookupTool(name string) (registry.ToolEntry, bool)
}

// Invoker executes tools and reads resources with permission checks.
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage, call tools.CallContext) (*tools.Result, error)
	ReadResource(ctx context.Context, uri string, call tools.CallContext) (*tools.ResourceContent, error)
}

// Deps are the collaborators of an Engine. Model, Catalog, Invoker and
// History are required.
type Deps struct {
	Model         Model
	Catalog       Catalog
	Invoker       Invoker
	History       storage.HistoryStore
	Identity      identity.Provider
	Confirmations *confirm.Store
	ToolSet       ToolSetConfig
	Logger        *slog.Logger
}

// Engine runs conversation turns.
type Engine struct {
	model         Model
	catalog       Catalog
	invoker       Invoker
	history       storage.HistoryStore
	identity      identity.Provider
	toolSet       ToolSetFactory
	confirmations *confirm.Store
	resolver      *confirm.Resolver
	cfg           Config
	logger        *slog.Logger
}

// New creates an Engine.
func New(deps Deps, cfg Config) (*Engine, error) {
	var errs []error
	if deps.Model == nil {
		errs = append(errs, errors.New("engine: model must not be nil"))
	}
	if deps.Catalog == nil {
		errs = append(errs, errors.New("engine: catalog must not be nil"))
	}
	if deps.Invoker == nil {
		errs = append(errs, errors.New("engine: invoker must not be nil"))
	}
	if deps.History == nil {
		errs = append(errs, errors.New("engine: history store must not be nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if deps.Identity == nil {
		deps.Identity = identity.Static(identity.Default)
	}
	if deps.Confirmations == nil {
		deps.Confirmations = confirm.NewStore()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Engine{
		model:         deps.Model,
		catalog:       deps.Catalog,
		invoker:       deps.Invoker,
		history:       deps.History,
		identity:      deps.Identity,
		toolSet:       NewToolSetFactory(deps.Catalog, deps.ToolSet),
		confirmations: deps.Confirmations,
		resolver:      confirm.NewResolver(deps.Confirmations, deps.Catalog, deps.Invoker, deps.History, deps.Logger),
		cfg:           cfg,
		logger:        deps.Logger,
	}, nil
}

// Chat runs one turn of the conversation. call may be nil, in which case
// the caller gets the default (least trusted) level.
func (e *Engine) Chat(ctx context.Context, message, conversationID string, call *tools.CallContext) (*api.AgentResponse, error) {
	if strings.TrimSpace(message) == "" {
		return nil, api.NewInvalidRequestError("message", "message must not be empty")
	}
	if !api.ValidateConversationID(conversationID) {
		return nil, invalidConversationID()
	}

	var cc tools.CallContext
	if call != nil {
		cc = *call
	}
	cc.Level = cc.Level.OrDefault()
	cc.ConversationID = conversationID

	if timeout := e.cfg.turnTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	logger := e.logger.With("conversation_id", conversationID, "tier", cc.Level, "interface", cc.Interface)

	history, err := e.history.GetMessages(ctx, conversationID, e.cfg.historyLimit())
	if err != nil {
		observability.TurnsTotal.WithLabelValues(string(cc.Level), "error").Inc()
		return nil, fmt.Errorf("loading history: %w", err)
	}
	messages := append(history, api.Turn{Role: api.RoleUser, Content: message, CreatedAt: time.Now().UTC()})

	active := e.toolSet(cc)
	req := ModelRequest{
		Instructions: BuildInstructions(e.identity.Identity(), cc.Level),
		Messages:     messages,
		Tools:        active.Tools,
		StepLimit:    e.cfg.stepLimit(),
		Invoke: func(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error) {
			return e.invokeForTurn(ctx, name, args, cc)
		},
	}

	result, err := e.model.Run(ctx, req)
	if err != nil {
		outcome := "error"
		if ctx.Err() != nil {
			outcome = "cancelled"
		}
		observability.TurnsTotal.WithLabelValues(string(cc.Level), outcome).Inc()
		logger.Warn("turn failed", "error", err, "duration", time.Since(start))
		return nil, e.turnError(ctx, err)
	}

	// Persist even if the caller went away mid-turn; the work is done.
	persistCtx := context.WithoutCancel(ctx)
	if err := e.history.AddMessage(persistCtx, conversationID, api.RoleUser, message); err != nil {
		return nil, fmt.Errorf("recording user turn: %w", err)
	}
	if err := e.history.AddMessage(persistCtx, conversationID, api.RoleAssistant, result.Text); err != nil {
		return nil, fmt.Errorf("recording assistant turn: %w", err)
	}

	outcome := "completed"
	if result.StepLimitReached {
		outcome = "step_limit"
	}
	observability.TurnsTotal.WithLabelValues(string(cc.Level), outcome).Inc()
	observability.TurnSteps.Observe(float64(len(result.Steps)))

	resp := &api.AgentResponse{
		ConversationID: conversationID,
		Text:           result.Text,
		Usage:          result.Usage,
		ToolResults:    result.ToolResults(),
	}
	// A pending action created by a more trusted caller is not shown.
	if pending, ok := e.confirmations.Peek(conversationID); ok && permission.HasPermission(cc.Level, pending.Required()) {
		resp.PendingConfirmation = &pending
	}

	logger.Info("turn completed",
		"steps", len(result.Steps),
		"tool_calls", len(resp.ToolResults),
		"offered_tools", len(active.Tools),
		"step_limit_reached", result.StepLimitReached,
		"duration", time.Since(start),
	)
	return resp, nil
}

// invokeForTurn routes a model tool call. Destructive tools are not run
// during a turn; a pending confirmation is recorded instead and the model is
// told to ask the user.
func (e *Engine) invokeForTurn(ctx context.Context, name string, args json.RawMessage, call tools.CallContext) (*tools.Result, error) {
	entry, ok := e.catalog.LookupTool(name)
	if !ok || !entry.Tool.Destructive || !permission.HasPermission(call.Level, entry.Visibility()) {
		return e.invoker.Invoke(ctx, name, args, call)
	}

	pending := api.PendingConfirmation{
		ToolName:      name,
		Description:   describeAction(entry.Tool, args),
		Args:          args,
		RequiredLevel: call.Level,
	}
	if err := e.confirmations.Set(call.ConversationID, pending); err != nil {
		return nil, tools.NewHandlerError(name, err)
	}
	return tools.TextResult(fmt.Sprintf(
		"Not executed yet: this action needs explicit confirmation. Ask the user to confirm that you should %s.",
		pending.Description)), nil
}

func describeAction(d tools.ToolDescriptor, args json.RawMessage) string {
	if len(args) == 0 || string(args) == "{}" {
		return "run " + d.Name
	}
	return fmt.Sprintf("run %s with %s", d.Name, args)
}

// turnError maps a failed turn to the error returned to the caller.
func (e *Engine) turnError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return api.NewServerError(fmt.Sprintf("turn exceeded the time limit of %s", e.cfg.turnTimeout()))
	}
	return err
}

// ListToolsForLevel returns the tools a caller at level may use.
func (e *Engine) ListToolsForLevel(level permission.Level) []registry.ToolEntry {
	return e.catalog.ListForLevel(level.OrDefault())
}

// ListResources returns every registered resource.
func (e *Engine) ListResources() []registry.ResourceEntry {
	return e.catalog.ListResources()
}

// ReadResource reads a resource on behalf of the caller.
func (e *Engine) ReadResource(ctx context.Context, uri string, call tools.CallContext) (*tools.ResourceContent, error) {
	call.Level = call.Level.OrDefault()
	return e.invoker.ReadResource(ctx, uri, call)
}

// SetPendingConfirmation records an action that needs explicit consent.
// Unless p.RequiredLevel says otherwise, only an anchor caller may resolve
// it.
func (e *Engine) SetPendingConfirmation(conversationID string, p api.PendingConfirmation) error {
	return e.confirmations.Set(conversationID, p)
}

// ConfirmPendingAction resolves the pending confirmation of a conversation
// on behalf of call. A nil call resolves at the default (least trusted)
// level. A caller below the level of the turn that created the action gets
// an error wrapping tools.ErrForbidden and the action stays pending.
func (e *Engine) ConfirmPendingAction(ctx context.Context, conversationID string, confirmed bool, call *tools.CallContext) (*api.AgentResponse, error) {
	var cc tools.CallContext
	if call != nil {
		cc = *call
	}
	cc.Level = cc.Level.OrDefault()
	return e.resolver.Confirm(ctx, conversationID, confirmed, cc)
}

// History returns the most recent turns of a conversation, oldest first.
func (e *Engine) History(ctx context.Context, conversationID string, limit int) ([]api.Turn, error) {
	if !api.ValidateConversationID(conversationID) {
		return nil, invalidConversationID()
	}
	if limit <= 0 || limit > e.cfg.historyLimit() {
		limit = e.cfg.historyLimit()
	}
	return e.history.GetMessages(ctx, conversationID, limit)
}

func invalidConversationID() *api.APIError {
	return api.NewInvalidRequestError("conversation_id",
		"conversation id must be 1 to 128 characters of letters, digits, or ._:@!#+=-")
}

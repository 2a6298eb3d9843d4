package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/debug"
	"github.com/rhuss/steward/pkg/observability"
	"github.com/rhuss/steward/pkg/provider"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/tools/registry"
)

// maxParallelCalls caps concurrent tool calls within one step.
const maxParallelCalls = 8

// StepLoop is the Model that drives a chat completions provider. Each step
// sends the conversation so far; when the model asks for tools, the calls
// are executed and their results appended before the next step.
type StepLoop struct {
	provider    provider.Provider
	model       string
	temperature *float64
	maxTokens   *int
	parallel    bool
	logger      *slog.Logger
}

var _ Model = (*StepLoop)(nil)

// LoopOption configures a StepLoop.
type LoopOption func(*StepLoop)

// WithSampling sets temperature and max tokens. Nil values are omitted.
func WithSampling(temperature *float64, maxTokens *int) LoopOption {
	return func(l *StepLoop) {
		l.temperature = temperature
		l.maxTokens = maxTokens
	}
}

// WithParallelToolCalls runs the tool calls of one step concurrently.
func WithParallelToolCalls(parallel bool) LoopOption {
	return func(l *StepLoop) { l.parallel = parallel }
}

// WithLoopLogger sets the logger.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *StepLoop) { l.logger = logger }
}

// NewStepLoop creates a StepLoop for p using the given model name.
func NewStepLoop(p provider.Provider, model string, opts ...LoopOption) (*StepLoop, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	l := &StepLoop{provider: p, model: model, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run executes the bounded loop. Reaching the step limit is not an error:
// the last text produced becomes the answer and StepLimitReached is set.
func (l *StepLoop) Run(ctx context.Context, req ModelRequest) (*ModelResult, error) {
	stepLimit := req.StepLimit
	if stepLimit <= 0 {
		stepLimit = DefaultStepLimit
	}

	provReq := &provider.ProviderRequest{
		Model:       l.model,
		Messages:    turnsToMessages(req.Instructions, req.Messages),
		Tools:       providerTools(req.Tools),
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
	}
	if apiErr := provider.ValidateCapabilities(l.provider.Capabilities(), provReq); apiErr != nil {
		l.logger.Warn("provider cannot call tools, offering none", "provider", l.provider.Name())
		provReq.Tools = nil
	}
	active := registry.Names(req.Tools)
	if provReq.Tools == nil {
		active = nil
	}

	result := &ModelResult{}
	for step := 1; step <= stepLimit; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := l.provider.Complete(ctx, provReq)
		if err != nil {
			observability.RecordProviderCall(l.provider.Name(), l.model, time.Since(start), 0, 0, err)
			return nil, upstreamError(ctx, err)
		}
		observability.RecordProviderCall(l.provider.Name(), l.model, time.Since(start),
			resp.Usage.InputTokens, resp.Usage.OutputTokens, nil)
		result.Usage.Add(resp.Usage)

		debug.Log("engine", "model step",
			"step", step,
			"finish_reason", resp.FinishReason,
			"tool_calls", len(resp.ToolCalls),
		)

		if resp.Text != "" {
			result.Text = resp.Text
		}
		if len(resp.ToolCalls) == 0 {
			result.Text = resp.Text
			result.Steps = append(result.Steps, Step{Text: resp.Text})
			return result, nil
		}

		calls := make([]tools.Call, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			if tc.ID == "" {
				resp.ToolCalls[i].ID = "call_" + strconv.Itoa(step) + "_" + strconv.Itoa(i)
			}
			if resp.ToolCalls[i].Type == "" {
				resp.ToolCalls[i].Type = "function"
			}
			calls[i] = tools.Call{ID: resp.ToolCalls[i].ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
		}

		entries := l.executeCalls(ctx, calls, active, req.Invoke)
		result.Steps = append(result.Steps, Step{Text: resp.Text, ToolCalls: entries})

		provReq.Messages = append(provReq.Messages, provider.ProviderMessage{
			Role:      provider.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		for i, e := range entries {
			provReq.Messages = append(provReq.Messages, provider.ProviderMessage{
				Role:       provider.RoleTool,
				Content:    toolMessage(e),
				ToolCallID: calls[i].ID,
			})
		}
	}

	result.StepLimitReached = true
	l.logger.Warn("step limit reached, returning last text as final answer",
		"step_limit", stepLimit,
		"has_text", result.Text != "",
	)
	return result, nil
}

// executeCalls runs the calls of one step and returns one entry per call in
// call order. Tool failures become error entries; they never abort the loop.
func (l *StepLoop) executeCalls(ctx context.Context, calls []tools.Call, active []string, invoke InvokeFunc) []api.ToolResult {
	filtered := tools.FilterCalls(calls, active)
	rejected := make(map[string]string, len(filtered.Rejected))
	for _, r := range filtered.Rejected {
		rejected[r.Call.Name] = r.Message
	}

	entries := make([]api.ToolResult, len(calls))
	execOne := func(i int, call tools.Call) {
		entry := api.ToolResult{ToolName: call.Name}
		if msg, ok := rejected[call.Name]; ok {
			entry.Error = msg
			entries[i] = entry
			return
		}

		args, err := tools.DecodeArguments(call.Arguments)
		if err != nil {
			entry.Error = err.Error()
			entries[i] = entry
			return
		}
		entry.Arguments = args

		res, err := invoke(ctx, call.Name, args)
		switch {
		case err != nil:
			if !tools.IsRecoverable(err) {
				l.logger.Warn("tool call failed", "tool", call.Name, "error", err)
			}
			entry.Error = err.Error()
		case res != nil:
			entry.Output = res.Data
			entry.Text = res.Text
		}
		entries[i] = entry
	}

	if l.parallel && len(calls) > 1 {
		// Failures are folded into entries, so the group never errors.
		var g errgroup.Group
		g.SetLimit(maxParallelCalls)
		for i, call := range calls {
			g.Go(func() error {
				execOne(i, call)
				return nil
			})
		}
		g.Wait()
	} else {
		for i, call := range calls {
			execOne(i, call)
		}
	}
	return entries
}

// toolMessage renders a tool result for the model.
func toolMessage(e api.ToolResult) string {
	if e.Error != "" {
		return "Error: " + e.Error
	}
	if e.Text != "" {
		return e.Text
	}
	if len(e.Output) > 0 {
		return string(e.Output)
	}
	return "(no output)"
}

func providerTools(entries []registry.ToolEntry) []provider.ProviderTool {
	if len(entries) == 0 {
		return nil
	}
	out := make([]provider.ProviderTool, 0, len(entries))
	for _, e := range entries {
		var params json.RawMessage
		if e.Tool.InputSchema != nil {
			if data, err := json.Marshal(e.Tool.InputSchema); err == nil {
				params = data
			}
		}
		out = append(out, provider.FunctionTool(e.Tool.Name, e.Tool.Description, params))
	}
	return out
}

// upstreamError keeps cancellation distinguishable and makes every other
// provider failure a model_error.
func upstreamError(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case api.ErrorTypeModelError, api.ErrorTypeTooManyRequests:
			return apiErr
		}
		return api.NewModelError(apiErr.Message, err)
	}
	return api.NewModelError("model backend failed: "+err.Error(), err)
}

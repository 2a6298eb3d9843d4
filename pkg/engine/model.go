package engine

import (
	"context"
	"encoding/json"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/tools/registry"
)

// InvokeFunc executes one tool call on behalf of the current caller. The
// caller's CallContext is already bound.
type InvokeFunc func(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error)

// ModelRequest is the input of one model-driven turn.
type ModelRequest struct {
	// Instructions is the system prompt for this call.
	Instructions string

	// Messages holds the history window followed by the new user turn.
	Messages []api.Turn

	// Tools is the active tool set; the model may only call these.
	Tools []registry.ToolEntry

	// StepLimit bounds the number of model steps.
	StepLimit int

	// Invoke runs a tool call.
	Invoke InvokeFunc
}

// Step records one model step.
type Step struct {
	// Text is what the model said in this step, possibly empty.
	Text string

	// ToolCalls holds the tool calls the model made in this step, in the
	// order it made them.
	ToolCalls []api.ToolResult
}

// ModelResult is the outcome of one model-driven turn.
type ModelResult struct {
	// Text is the final answer, or the last text produced when the step
	// limit was reached.
	Text string

	Steps []Step
	Usage api.Usage

	// StepLimitReached is set when the loop stopped because of the step
	// limit rather than a final answer.
	StepLimitReached bool
}

// ToolResults flattens the tool calls of every step.
func (r *ModelResult) ToolResults() []api.ToolResult {
	out := []api.ToolResult{}
	for _, s := range r.Steps {
		out = append(out, s.ToolCalls...)
	}
	return out
}

// Model is the model-driven tool-execution primitive. Errors returned by Run
// abort the turn; tool failures are reported inside the result instead.
type Model interface {
	Run(ctx context.Context, req ModelRequest) (*ModelResult, error)
}

// ModelFunc adapts a function to a Model.
type ModelFunc func(ctx context.Context, req ModelRequest) (*ModelResult, error)

// Run calls f(ctx, req).
func (f ModelFunc) Run(ctx context.Context, req ModelRequest) (*ModelResult, error) {
	return f(ctx, req)
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/permission"
	"github.com/rhuss/steward/pkg/provider"
	"github.com/rhuss/steward/pkg/router"
	"github.com/rhuss/steward/pkg/storage/memory"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/tools/registry"
)

// scriptedProvider answers each Complete call with the next scripted step.
// When the script runs out, the last step repeats.
type scriptedProvider struct {
	caps provider.ProviderCapabilities

	mu       sync.Mutex
	steps    []func(req *provider.ProviderRequest) (*provider.ProviderResponse, error)
	requests []provider.ProviderRequest
}

func newScriptedProvider(steps ...func(req *provider.ProviderRequest) (*provider.ProviderResponse, error)) *scriptedProvider {
	return &scriptedProvider{caps: provider.ProviderCapabilities{ToolCalling: true}, steps: steps}
}

func (p *scriptedProvider) Name() string                                { return "scripted" }
func (p *scriptedProvider) Capabilities() provider.ProviderCapabilities { return p.caps }
func (p *scriptedProvider) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return nil, nil
}
func (p *scriptedProvider) Close() error { return nil }

func (p *scriptedProvider) Complete(_ context.Context, req *provider.ProviderRequest) (*provider.ProviderResponse, error) {
	p.mu.Lock()
	snapshot := *req
	snapshot.Messages = append([]provider.ProviderMessage(nil), req.Messages...)
	p.requests = append(p.requests, snapshot)
	i := len(p.requests) - 1
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	step := p.steps[i]
	p.mu.Unlock()
	return step(req)
}

func (p *scriptedProvider) calls() []provider.ProviderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.ProviderRequest(nil), p.requests...)
}

func answer(text string) func(*provider.ProviderRequest) (*provider.ProviderResponse, error) {
	return func(*provider.ProviderRequest) (*provider.ProviderResponse, error) {
		return &provider.ProviderResponse{
			Text:         text,
			FinishReason: provider.FinishStop,
			Usage:        api.Usage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12},
		}, nil
	}
}

func callTool(text string, calls ...provider.ProviderFunctionCall) func(*provider.ProviderRequest) (*provider.ProviderResponse, error) {
	return func(*provider.ProviderRequest) (*provider.ProviderResponse, error) {
		resp := &provider.ProviderResponse{
			Text:         text,
			FinishReason: provider.FinishToolCalls,
			Usage:        api.Usage{InputTokens: 5, OutputTokens: 1, TotalTokens: 6},
		}
		for _, c := range calls {
			resp.ToolCalls = append(resp.ToolCalls, provider.ProviderToolCall{Type: "function", Function: c})
		}
		return resp, nil
	}
}

func fn(name, args string) provider.ProviderFunctionCall {
	return provider.ProviderFunctionCall{Name: name, Arguments: args}
}

// testbed wires a registry, router, memory history and engine.
type testbed struct {
	reg     *registry.Registry
	router  *router.Router
	history *memory.Store

	mu      sync.Mutex
	invoked []string
}

func newTestbed(t *testing.T) *testbed {
	t.Helper()
	tb := &testbed{reg: registry.New(), history: memory.New(0)}
	tb.router = router.New(tb.reg)

	tb.register(t, "greeter", tools.ToolDescriptor{
		Name:        "echo",
		Description: "Echo text back",
		Visibility:  permission.Public,
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Required:   []string{"text"},
			Properties: map[string]*jsonschema.Schema{"text": {Type: "string"}},
		},
		Handler: tools.HandlerFunc(func(_ context.Context, args json.RawMessage, _ tools.CallContext) (*tools.Result, error) {
			var in struct{ Text string }
			_ = json.Unmarshal(args, &in)
			return tools.TextResult(in.Text), nil
		}),
	})
	tb.register(t, "members", tools.ToolDescriptor{
		Name:       "member_lookup",
		Visibility: permission.Trusted,
		Handler: tools.HandlerFunc(func(context.Context, json.RawMessage, tools.CallContext) (*tools.Result, error) {
			return tools.JSONResult(map[string]int{"members": 42})
		}),
	})
	tb.register(t, "flaky", tools.ToolDescriptor{
		Name:       "broken",
		Visibility: permission.Public,
		Handler: tools.HandlerFunc(func(context.Context, json.RawMessage, tools.CallContext) (*tools.Result, error) {
			return nil, errors.New("upstream service unavailable")
		}),
	})
	tb.register(t, "moderation", tools.ToolDescriptor{
		Name:        "delete_channel",
		Visibility:  permission.Anchor,
		Destructive: true,
		Handler: tools.HandlerFunc(func(context.Context, json.RawMessage, tools.CallContext) (*tools.Result, error) {
			return tools.TextResult("channel deleted"), nil
		}),
	})
	return tb
}

func (tb *testbed) register(t *testing.T, owner string, d tools.ToolDescriptor) {
	t.Helper()
	inner := d.Handler
	name := d.Name
	d.Handler = tools.HandlerFunc(func(ctx context.Context, args json.RawMessage, call tools.CallContext) (*tools.Result, error) {
		tb.mu.Lock()
		tb.invoked = append(tb.invoked, name)
		tb.mu.Unlock()
		return inner.Handle(ctx, args, call)
	})
	if err := tb.reg.RegisterTool(owner, d); err != nil {
		t.Fatalf("RegisterTool(%s): %v", d.Name, err)
	}
}

func (tb *testbed) invocations() []string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return append([]string(nil), tb.invoked...)
}

func (tb *testbed) engine(t *testing.T, model Model, cfg Config) *Engine {
	t.Helper()
	e, err := New(Deps{
		Model:   model,
		Catalog: tb.reg,
		Invoker: tb.router,
		History: tb.history,
	}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func (tb *testbed) loopEngine(t *testing.T, p provider.Provider, cfg Config) *Engine {
	t.Helper()
	loop, err := NewStepLoop(p, "test-model")
	if err != nil {
		t.Fatalf("NewStepLoop: %v", err)
	}
	return tb.engine(t, loop, cfg)
}

func at(level permission.Level) *tools.CallContext {
	return &tools.CallContext{Level: level, Interface: tools.InterfaceHTTP}
}

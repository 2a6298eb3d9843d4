// Package integration runs end-to-end tests against a complete steward
// stack: history store, registry, bus, router, an MCP server attached
// through the bridge, the orchestrator backed by a mock Chat Completions
// server, the HTTP adapter and the MCP endpoint, all behind API key auth.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/steward/pkg/auth"
	"github.com/rhuss/steward/pkg/auth/apikey"
	"github.com/rhuss/steward/pkg/bus"
	"github.com/rhuss/steward/pkg/engine"
	"github.com/rhuss/steward/pkg/permission"
	"github.com/rhuss/steward/pkg/provider/openaicompat"
	"github.com/rhuss/steward/pkg/router"
	"github.com/rhuss/steward/pkg/storage/memory"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/tools/mcp"
	"github.com/rhuss/steward/pkg/tools/registry"
	"github.com/rhuss/steward/pkg/transport"
	transporthttp "github.com/rhuss/steward/pkg/transport/http"
	transportmcp "github.com/rhuss/steward/pkg/transport/mcp"
)

// API keys of the three tiers.
const (
	publicKey  = "public-key"
	trustedKey = "trusted-key"
	anchorKey  = "anchor-key"
)

// testEnv holds the shared servers for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the steward server and its collaborators.
type TestEnvironment struct {
	Steward     *httptest.Server
	MockBackend *httptest.Server
	MCPServer   *httptest.Server
	Local       *localComponent

	cancel context.CancelFunc
	bus    *bus.Local
	group  *mcp.Group
}

// TestMain starts the environment before running tests.
func TestMain(m *testing.M) {
	env, err := setupTestEnvironment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up test environment: %v\n", err)
		os.Exit(1)
	}
	testEnv = env
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

func setupTestEnvironment() (*TestEnvironment, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	env := &TestEnvironment{cancel: cancel}

	env.MockBackend = httptest.NewServer(http.HandlerFunc(handleMockChatCompletions))

	mcpTools := newRemoteServer()
	mcpMux := http.NewServeMux()
	mcpMux.Handle("/mcp", gomcp.NewStreamableHTTPHandler(func(*http.Request) *gomcp.Server { return mcpTools }, nil))
	env.MCPServer = httptest.NewServer(mcpMux)

	reg := registry.New(registry.WithLogger(logger))
	env.Local = newLocalComponent()
	if err := reg.RegisterComponent(env.Local); err != nil {
		return nil, err
	}

	env.bus = bus.NewLocal(bus.WithTimeout(10*time.Second), bus.WithLogger(logger))
	rt := router.New(reg, router.WithBus(env.bus), router.WithLogger(logger))

	env.group = mcp.Connect(ctx, []mcp.ServerConfig{{
		Name:       "kb",
		URL:        env.MCPServer.URL + "/mcp",
		Visibility: permission.Trusted,
	}}, env.bus, reg, logger)
	if len(env.group.Bridges()) != 1 {
		return nil, fmt.Errorf("mcp server did not attach")
	}
	go env.group.Run(ctx)

	prov, err := openaicompat.New(openaicompat.Config{BaseURL: env.MockBackend.URL})
	if err != nil {
		return nil, err
	}
	loop, err := engine.NewStepLoop(prov, "mock-model", engine.WithLoopLogger(logger))
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(engine.Deps{
		Model:   loop,
		Catalog: reg,
		Invoker: rt,
		History: memory.New(100),
		Logger:  logger,
	}, engine.Config{Model: "mock-model", StepLimit: 4})
	if err != nil {
		return nil, err
	}

	adapter := transporthttp.NewAdapter(eng, transporthttp.DefaultConfig(), logger,
		transport.Recovery(logger), transport.RequestID(), transport.Logging(logger))

	mux := http.NewServeMux()
	mux.Handle("/", adapter.Handler())
	mux.Handle("/mcp", transportmcp.New(reg, rt, transportmcp.WithLogger(logger)).Handler())

	keys := apikey.New([]apikey.RawKeyEntry{
		{Key: publicKey, Identity: auth.Identity{Subject: "visitor", Tier: permission.Public}},
		{Key: trustedKey, Identity: auth.Identity{Subject: "member", Tier: permission.Trusted}},
		{Key: anchorKey, Identity: auth.Identity{Subject: "owner", Tier: permission.Anchor}},
	})
	chain := &auth.AuthChain{Authenticators: []auth.Authenticator{keys}, DefaultDecision: auth.No}
	env.Steward = httptest.NewServer(auth.Middleware(chain, nil, []string{"/healthz", "/metrics"})(mux))

	return env, nil
}

// Teardown stops every server.
func (env *TestEnvironment) Teardown() {
	env.Steward.Close()
	env.cancel()
	env.group.Close()
	env.bus.Close()
	env.MCPServer.Close()
	env.MockBackend.Close()
}

// BaseURL returns the steward server base URL.
func (env *TestEnvironment) BaseURL() string {
	return env.Steward.URL
}

// --- local tools ---

// localComponent contributes in-process tools of every tier.
type localComponent struct {
	deleted atomic.Int64
	waiting chan struct{}
}

func newLocalComponent() *localComponent {
	return &localComponent{waiting: make(chan struct{}, 1)}
}

func (c *localComponent) Name() string { return "local" }

func (c *localComponent) Tools() []tools.ToolDescriptor {
	textArg := &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"text": {Type: "string"}},
		Required:   []string{"text"},
	}
	return []tools.ToolDescriptor{
		{
			Name:        "echo",
			Description: "Repeat the given text",
			InputSchema: textArg,
			Visibility:  permission.Public,
			Handler: tools.HandlerFunc(func(_ context.Context, args json.RawMessage, _ tools.CallContext) (*tools.Result, error) {
				var in struct{ Text string }
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				return tools.TextResult(in.Text), nil
			}),
		},
		{
			Name:        "member_lookup",
			Description: "Look up a member",
			Visibility:  permission.Trusted,
			Handler: tools.HandlerFunc(func(context.Context, json.RawMessage, tools.CallContext) (*tools.Result, error) {
				return tools.TextResult("member since 2020"), nil
			}),
		},
		{
			Name:        "delete_channel",
			Description: "Delete a channel",
			Visibility:  permission.Anchor,
			Destructive: true,
			Handler: tools.HandlerFunc(func(context.Context, json.RawMessage, tools.CallContext) (*tools.Result, error) {
				c.deleted.Add(1)
				return tools.TextResult("channel deleted"), nil
			}),
		},
		{
			Name:        "wait",
			Description: "Block until the turn is cancelled",
			Visibility:  permission.Anchor,
			Handler: tools.HandlerFunc(func(ctx context.Context, _ json.RawMessage, _ tools.CallContext) (*tools.Result, error) {
				c.waiting <- struct{}{}
				<-ctx.Done()
				return nil, ctx.Err()
			}),
		},
	}
}

func (c *localComponent) Resources() []tools.ResourceDescriptor {
	return []tools.ResourceDescriptor{{
		URI:      "notes://local",
		MIMEType: "text/plain",
		Read: func(_ context.Context, uri string, _ tools.CallContext) (*tools.ResourceContent, error) {
			return &tools.ResourceContent{URI: uri, MIMEType: "text/plain", Text: "local notes"}, nil
		},
	}}
}

// --- remote MCP server ---

func newRemoteServer() *gomcp.Server {
	server := gomcp.NewServer(&gomcp.Implementation{Name: "kb", Version: "1.0.0"}, nil)

	type echoInput struct {
		Message string `json:"message"`
	}
	gomcp.AddTool(server, &gomcp.Tool{Name: "remote_echo", Description: "Echo from the knowledge base"},
		func(_ context.Context, _ *gomcp.CallToolRequest, in echoInput) (*gomcp.CallToolResult, struct{}, error) {
			return &gomcp.CallToolResult{Content: []gomcp.Content{&gomcp.TextContent{Text: "remote: " + in.Message}}}, struct{}{}, nil
		})

	server.AddResource(&gomcp.Resource{Name: "faq", URI: "kb://faq", MIMEType: "text/plain"},
		func(_ context.Context, req *gomcp.ReadResourceRequest) (*gomcp.ReadResourceResult, error) {
			return &gomcp.ReadResourceResult{Contents: []*gomcp.ResourceContents{
				{URI: req.Params.URI, MIMEType: "text/plain", Text: "Q: why? A: because."},
			}}, nil
		})
	return server
}

// --- mock model backend ---

// handleMockChatCompletions answers "call <tool> <json>" prompts with a tool
// call when the tool is offered, answers tool results with "Done: <result>",
// and echoes everything else.
func handleMockChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Tools []struct {
			Function struct {
				Name string `json:"name"`
			} `json:"function"`
		} `json:"tools"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request"}}`, http.StatusBadRequest)
		return
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Role == "tool" {
		writeCompletion(w, "Done: "+last.Content, "", "")
		return
	}

	rest, isCall := strings.CutPrefix(last.Content, "call ")
	if !isCall {
		writeCompletion(w, "You said: "+last.Content, "", "")
		return
	}
	name, args, _ := strings.Cut(rest, " ")
	if args == "" {
		args = "{}"
	}
	for _, t := range req.Tools {
		if t.Function.Name == name {
			writeCompletion(w, "", name, args)
			return
		}
	}
	writeCompletion(w, fmt.Sprintf("I cannot use %s here.", name), "", "")
}

func writeCompletion(w http.ResponseWriter, text, tool, args string) {
	message := map[string]any{"role": "assistant", "content": text}
	finish := "stop"
	if tool != "" {
		message["content"] = nil
		message["tool_calls"] = []map[string]any{{
			"id":       "call_1",
			"type":     "function",
			"function": map[string]any{"name": tool, "arguments": args},
		}}
		finish = "tool_calls"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"model":   "mock-model",
		"choices": []map[string]any{{"index": 0, "message": message, "finish_reason": finish}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

// --- HTTP helpers ---

// doRequest sends a request with an optional JSON body and bearer token.
func doRequest(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, testEnv.BaseURL()+path, reader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// chat posts one message and decodes a successful reply.
func chat(t *testing.T, token, conversationID, message string) map[string]any {
	t.Helper()
	resp := doRequest(t, http.MethodPost, "/v1/conversations/"+conversationID+"/messages", token,
		map[string]any{"message": message})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var out map[string]any
	decodeJSON(t, resp, &out)
	return out
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return string(data)
}

// decodeJSON decodes the response body into target.
func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

// toolNames returns the tool_name of every tool result in a chat reply.
func toolNames(reply map[string]any) []string {
	var names []string
	results, _ := reply["tool_results"].([]any)
	for _, r := range results {
		if m, ok := r.(map[string]any); ok {
			names = append(names, fmt.Sprint(m["tool_name"]))
		}
	}
	return names
}


package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/steward/pkg/tools"
)

// ClientVersion is reported to MCP servers during the handshake.
var ClientVersion = "dev"

// ErrNotConnected is returned by operations on a client without a session.
var ErrNotConnected = errors.New("mcp client not connected")

// RemoteError is a tool failure reported by the MCP server itself.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Client is one connection to an MCP server.
type Client struct {
	cfg     ServerConfig
	logger  *slog.Logger
	client  *mcp.Client
	session *mcp.ClientSession

	mu       sync.Mutex
	watchers map[string]tools.ProgressSink
}

// NewClient creates a client for cfg. Call Connect before using it.
func NewClient(cfg ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		logger:   logger.With("mcp_server", cfg.Name),
		watchers: make(map[string]tools.ProgressSink),
	}
}

// Connect performs the MCP handshake over the configured transport.
func (c *Client) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport performs the handshake over transport, or over a
// transport built from the configuration when transport is nil.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{Name: "steward", Version: ClientVersion},
		&mcp.ClientOptions{ProgressNotificationHandler: c.handleProgress},
	)

	if transport == nil {
		t, err := newTransport(c.cfg)
		if err != nil {
			return err
		}
		transport = t
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to mcp server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	c.logger.Info("mcp server connected", "url", c.cfg.URL)
	return nil
}

func newTransport(cfg ServerConfig) (mcp.Transport, error) {
	httpClient := httpClientFor(cfg)
	switch cfg.Transport {
	case TransportSSE:
		t := &mcp.SSEClientTransport{Endpoint: cfg.URL}
		if httpClient != nil {
			t.HTTPClient = httpClient
		}
		return t, nil
	case TransportStreamable, "":
		t := &mcp.StreamableClientTransport{Endpoint: cfg.URL}
		if httpClient != nil {
			t.HTTPClient = httpClient
		}
		return t, nil
	default:
		return nil, fmt.Errorf("mcp server %q: unsupported transport %q", cfg.Name, cfg.Transport)
	}
}

// ListTools returns the server's tools as remote descriptors carrying the
// configured visibility.
func (c *Client) ListTools(ctx context.Context) ([]tools.ToolDescriptor, error) {
	if c.session == nil {
		return nil, ErrNotConnected
	}

	var out []tools.ToolDescriptor
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		schema, err := tools.SchemaFromJSON(tool.InputSchema)
		if err != nil {
			c.logger.Warn("skipping mcp tool with unusable schema", "tool", tool.Name, "error", err)
			continue
		}
		out = append(out, tools.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
			Kind:        tools.KindRemote,
			Visibility:  c.cfg.visibilityFor(tool.Name),
			Destructive: c.cfg.destructive(tool.Name) || annotatedDestructive(tool),
		})
	}
	return out, nil
}

// annotatedDestructive only trusts an explicit hint.
func annotatedDestructive(t *mcp.Tool) bool {
	a := t.Annotations
	return a != nil && !a.ReadOnlyHint && a.DestructiveHint != nil && *a.DestructiveHint
}

// ListResources returns the server's resources as remote descriptors. A
// server without the resources capability has none.
func (c *Client) ListResources(ctx context.Context) ([]tools.ResourceDescriptor, error) {
	if c.session == nil {
		return nil, ErrNotConnected
	}
	if init := c.session.InitializeResult(); init == nil || init.Capabilities == nil || init.Capabilities.Resources == nil {
		return nil, nil
	}

	var out []tools.ResourceDescriptor
	for res, err := range c.session.Resources(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing resources from %q: %w", c.cfg.Name, err)
		}
		out = append(out, tools.ResourceDescriptor{
			URI:         res.URI,
			Description: res.Description,
			MIMEType:    res.MIMEType,
			Kind:        tools.KindRemote,
		})
	}
	return out, nil
}

// CallTool runs a tool on the server. Progress notifications for the call
// go to sink when it is not nil. A failure reported by the tool is
// returned as *RemoteError.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage, sink tools.ProgressSink) (*tools.Result, error) {
	if c.session == nil {
		return nil, ErrNotConnected
	}

	params := &mcp.CallToolParams{Name: name}
	if len(args) > 0 {
		params.Arguments = args
	}
	if sink != nil {
		token := uuid.NewString()
		params.SetProgressToken(token)
		c.mu.Lock()
		c.watchers[token] = sink
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			delete(c.watchers, token)
			c.mu.Unlock()
		}()
	}

	res, err := c.session.CallTool(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("calling %s on %q: %w", name, c.cfg.Name, err)
	}

	text := joinText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, &RemoteError{Message: text}
	}

	result := &tools.Result{Text: text}
	if res.StructuredContent != nil {
		if data, err := json.Marshal(res.StructuredContent); err == nil {
			result.Data = data
		}
	}
	return result, nil
}

// ReadResource reads a resource from the server.
func (c *Client) ReadResource(ctx context.Context, uri string) (*tools.ResourceContent, error) {
	if c.session == nil {
		return nil, ErrNotConnected
	}

	res, err := c.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, fmt.Errorf("reading %s from %q: %w", uri, c.cfg.Name, err)
	}

	content := &tools.ResourceContent{URI: uri}
	var texts []string
	for _, rc := range res.Contents {
		if content.MIMEType == "" {
			content.MIMEType = rc.MIMEType
		}
		if rc.Text != "" {
			texts = append(texts, rc.Text)
		} else if len(rc.Blob) > 0 && content.Blob == nil {
			content.Blob = rc.Blob
		}
	}
	content.Text = strings.Join(texts, "\n")
	return content, nil
}

func (c *Client) handleProgress(ctx context.Context, req *mcp.ProgressNotificationClientRequest) {
	token, ok := req.Params.ProgressToken.(string)
	if !ok {
		return
	}
	c.mu.Lock()
	sink := c.watchers[token]
	c.mu.Unlock()
	if sink == nil {
		c.logger.Debug("dropping progress for unknown token", "token", token)
		return
	}
	sink.Report(ctx, tools.Progress{
		Progress: req.Params.Progress,
		Total:    req.Params.Total,
		Message:  req.Params.Message,
	})
}

// Close ends the session.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

func joinText(content []mcp.Content) string {
	var parts []string
	for _, ct := range content {
		if tc, ok := ct.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Package mcp serves the tool registry to MCP clients.
//
// The HTTP endpoint is stateless: every request gets a server listing the
// tools its caller's tier may use at that moment. Calls still go through
// the invocation router, which checks the tier again. Resources are offered to anchor sessions only.
// Progress reported by a tool is sent to the client as MCP progress
// notifications when the client supplied a progress token.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/steward/pkg/auth"
	"github.com/rhuss/steward/pkg/permission"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/tools/registry"
)

// Catalog lists what a caller may see.
type Catalog interface {
	ListForLevel(level permission.Level) []registry.ToolEntry
	ListResources() []registry.ResourceEntry
}

// Invoker runs tools and reads resources for a caller.
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage, call tools.CallContext) (*tools.Result, error)
	ReadResource(ctx context.Context, uri string, call tools.CallContext) (*tools.ResourceContent, error)
}

// Server builds MCP servers over a catalog.
type Server struct {
	catalog Catalog
	invoker Invoker
	logger  *slog.Logger
	version string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a Server.
func New(catalog Catalog, invoker Invoker, opts ...Option) *Server {
	s := &Server{
		catalog: catalog,
		invoker: invoker,
		logger:  slog.Default(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler serves MCP over streamable HTTP. The caller tier is read from
// the identity the auth middleware stored in the request context, on every
// request, so registry changes and tier changes apply to open clients.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		id := auth.IdentityFromContext(r.Context())
		level := id.Level()
		s.logger.Debug("mcp request", "level", level, "subject", subjectOf(id))
		return s.ServerFor(level, subjectOf(id))
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}

func subjectOf(id *auth.Identity) string {
	if id == nil {
		return ""
	}
	return id.Subject
}

// ServerFor returns an MCP server exposing what level may use. userID is
// passed to tool handlers.
func (s *Server) ServerFor(level permission.Level, userID string) *mcp.Server {
	level = level.OrDefault()
	srv := mcp.NewServer(&mcp.Implementation{Name: "steward", Version: s.version}, nil)

	for _, e := range s.catalog.ListForLevel(level) {
		schema, ok := objectSchema(e.Tool.InputSchema)
		if !ok {
			s.logger.Warn("not exposing tool over mcp, input schema is not an object", "tool", e.Tool.Name)
			continue
		}
		tool := &mcp.Tool{
			Name:        e.Tool.Name,
			Description: e.Tool.Description,
			InputSchema: schema,
		}
		if e.Tool.Destructive {
			destructive := true
			tool.Annotations = &mcp.ToolAnnotations{DestructiveHint: &destructive}
		}
		srv.AddTool(tool, s.callTool(e.Tool.Name, level, userID))
	}

	if permission.HasPermission(level, permission.DefaultVisibility) {
		for _, e := range s.catalog.ListResources() {
			srv.AddResource(&mcp.Resource{
				URI:         e.Resource.URI,
				Name:        e.Resource.URI,
				Description: e.Resource.Description,
				MIMEType:    e.Resource.MIMEType,
			}, s.readResource(level, userID))
		}
	}
	return srv
}

// objectSchema returns the schema to advertise. MCP requires an object
// schema; a nil schema or one without a type becomes an open object.
func objectSchema(s *jsonschema.Schema) (*jsonschema.Schema, bool) {
	if s == nil {
		return &jsonschema.Schema{Type: "object"}, true
	}
	switch s.Type {
	case "object":
		return s, true
	case "":
		cp := *s
		cp.Type = "object"
		return &cp, true
	default:
		return nil, false
	}
}

func (s *Server) callTool(name string, level permission.Level, userID string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := tools.CallContext{
			Level:     level,
			Interface: tools.InterfaceMCP,
			UserID:    userID,
		}
		if token := req.Params.GetProgressToken(); token != nil {
			session := req.Session
			call.Progress = tools.ProgressFunc(func(ctx context.Context, p tools.Progress) {
				err := session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
					ProgressToken: token,
					Progress:      p.Progress,
					Total:         p.Total,
					Message:       p.Message,
				})
				if err != nil {
					s.logger.Debug("mcp progress notification failed", "tool", name, "error", err)
				}
			})
		}

		res, err := s.invoker.Invoke(ctx, name, req.Params.Arguments, call)
		if err != nil {
			s.logger.Info("mcp tool call failed", "tool", name, "level", level, "error", err)
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: errorText(err)}},
			}, nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: res.String()}}}, nil
	}
}

func (s *Server) readResource(level permission.Level, userID string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		content, err := s.invoker.ReadResource(ctx, uri, tools.CallContext{
			Level:     level,
			Interface: tools.InterfaceMCP,
			UserID:    userID,
		})
		if errors.Is(err, tools.ErrNotFound) {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		if err != nil {
			return nil, errors.New(errorText(err))
		}
		return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: content.MIMEType,
			Text:     content.Text,
			Blob:     content.Blob,
		}}}, nil
	}
}

// errorText is what an MCP client is told about a failed call.
func errorText(err error) string {
	var handlerErr *tools.HandlerError
	switch {
	case errors.As(err, &handlerErr):
		return handlerErr.Error()
	case errors.Is(err, tools.ErrForbidden):
		return "permission denied"
	case errors.Is(err, tools.ErrNotFound), errors.Is(err, tools.ErrInvalidArguments):
		return err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "call cancelled"
	default:
		return "internal error"
	}
}

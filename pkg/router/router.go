// Package router executes registry entries on behalf of a caller.
//
// Invoke looks up a tool, checks the caller's level against the tool's
// visibility (independently of any filtering the caller already did),
// validates the arguments, and dispatches either to the in-process handler
// or, for remote tools, as a correlated request on the bus addressed to
// the owning component. Failures reported by the owner become
// [tools.HandlerError] values carrying the owner's message.
//
// The router keeps no per-conversation state; invocations are independent.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/steward/pkg/bus"
	"github.com/rhuss/steward/pkg/permission"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/tools/registry"
)

var (
	invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_tool_invocations_total",
			Help: "Tool invocations by tool, dispatch kind, and status",
		},
		[]string{"tool", "kind", "status"},
	)

	invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steward_tool_invocation_duration_seconds",
			Help:    "Tool invocation duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool", "kind"},
	)
)

func init() {
	prometheus.MustRegister(invocations, invocationDuration)
}

// Catalog is the read side of the registry the router needs.
type Catalog interface {
	LookupTool(name string) (registry.ToolEntry, bool)
	LookupResource(uri string) (registry.ResourceEntry, bool)
}

// Router executes tools and reads resources.
type Router struct {
	catalog Catalog
	bus     bus.Bus
	logger  *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithBus sets the bus used for remote descriptors.
func WithBus(b bus.Bus) Option {
	return func(r *Router) { r.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a Router over catalog. Without a bus, remote descriptors
// fail with a HandlerError.
func New(catalog Catalog, opts ...Option) *Router {
	r := &Router{
		catalog: catalog,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Invoke runs the named tool for the caller described by call.
func (r *Router) Invoke(ctx context.Context, name string, args json.RawMessage, call tools.CallContext) (result *tools.Result, err error) {
	entry, ok := r.catalog.LookupTool(name)
	if !ok {
		invocations.WithLabelValues(name, "unknown", "not_found").Inc()
		return nil, fmt.Errorf("tool %s: %w", name, tools.ErrNotFound)
	}

	level := call.Level.OrDefault()
	if !permission.HasPermission(level, entry.Visibility()) {
		invocations.WithLabelValues(name, entry.Tool.Kind.String(), "forbidden").Inc()
		r.logger.Warn("tool invocation denied",
			"tool", name,
			"level", level,
			"visibility", entry.Visibility(),
			"conversation_id", call.ConversationID,
			"interface", call.Interface,
		)
		return nil, fmt.Errorf("tool %s requires %s, caller is %s: %w", name, entry.Visibility(), level, tools.ErrForbidden)
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := entry.Schema.Validate(args); err != nil {
		invocations.WithLabelValues(name, entry.Tool.Kind.String(), "invalid_arguments").Inc()
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}

	kind := entry.Tool.Kind.String()
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", name, "owner", entry.OwnerID, "panic", rec)
			result = nil
			err = &tools.HandlerError{Tool: name, Message: fmt.Sprintf("internal error: tool %q panicked", name)}
		}

		status := "success"
		if err != nil {
			status = "error"
		}
		invocations.WithLabelValues(name, kind, status).Inc()
		invocationDuration.WithLabelValues(name, kind).Observe(time.Since(start).Seconds())
	}()

	if entry.Tool.Kind == tools.KindRemote {
		return r.dispatch(ctx, entry.OwnerID, bus.OpCallTool, name, args, call)
	}

	result, err = entry.Tool.Handler.Handle(ctx, args, call)
	if err != nil {
		return nil, tools.NewHandlerError(name, err)
	}
	if result == nil {
		result = &tools.Result{}
	}
	return result, nil
}

// ReadResource reads the resource at uri for the caller described by call.
func (r *Router) ReadResource(ctx context.Context, uri string, call tools.CallContext) (*tools.ResourceContent, error) {
	entry, ok := r.catalog.LookupResource(uri)
	if !ok {
		return nil, fmt.Errorf("resource %s: %w", uri, tools.ErrNotFound)
	}

	level := call.Level.OrDefault()
	if !permission.HasPermission(level, entry.Visibility()) {
		return nil, fmt.Errorf("resource %s requires %s, caller is %s: %w", uri, entry.Visibility(), level, tools.ErrForbidden)
	}

	if entry.Resource.Kind == tools.KindRemote {
		res, err := r.dispatch(ctx, entry.OwnerID, bus.OpReadResource, uri, nil, call)
		if err != nil {
			return nil, err
		}
		content := &tools.ResourceContent{URI: uri, MIMEType: entry.Resource.MIMEType, Text: res.Text, Blob: res.Blob}
		if content.Text == "" && len(content.Blob) == 0 {
			content.Text = string(res.Data)
		}
		return content, nil
	}

	content, err := entry.Resource.Read(ctx, uri, call)
	if err != nil {
		return nil, tools.NewHandlerError(uri, err)
	}
	if content.MIMEType == "" {
		content.MIMEType = entry.Resource.MIMEType
	}
	return content, nil
}

// dispatch sends a correlated request to owner and unwraps the response.
func (r *Router) dispatch(ctx context.Context, owner string, op bus.Operation, target string, args json.RawMessage, call tools.CallContext) (*tools.Result, error) {
	if r.bus == nil {
		return nil, &tools.HandlerError{Tool: target, Message: "no bus configured for remote component " + owner}
	}

	req := &bus.Request{
		ID:     uuid.NewString(),
		Owner:  owner,
		Op:     op,
		Target: target,
		Args:   args,
		Call:   call,
	}

	if call.Progress != nil {
		req.ProgressToken = uuid.NewString()
		stop := r.bus.WatchProgress(req.ProgressToken, func(p tools.Progress) {
			call.Progress.Report(ctx, p)
		})
		defer stop()
	}

	resp, err := r.bus.Request(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, err
		}
		return nil, &tools.HandlerError{Tool: target, Message: err.Error(), Err: err}
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "component reported failure"
		}
		return nil, &tools.HandlerError{Tool: target, Message: msg}
	}
	return resp.Result(), nil
}

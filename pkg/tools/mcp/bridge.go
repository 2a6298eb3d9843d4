package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/steward/pkg/bus"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/tools/registry"
)

// Registrar is the write side of the registry a bridge needs.
type Registrar interface {
	RegisterComponent(c registry.Component) error
	UnregisterOwner(ownerID string) int
}

// Bridge makes one MCP server available as a bus owner.
type Bridge struct {
	cfg    ServerConfig
	bus    *bus.Local
	reg    Registrar
	client *Client
	logger *slog.Logger

	requests *prometheus.CounterVec

	sub       *bus.Subscription
	tools     []tools.ToolDescriptor
	resources []tools.ResourceDescriptor

	closeOnce sync.Once
}

var (
	_ registry.Component         = (*Bridge)(nil)
	_ registry.CollectorProvider = (*Bridge)(nil)
)

// NewBridge creates a bridge for cfg. Start connects it.
func NewBridge(cfg ServerConfig, b *bus.Local, reg Registrar, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	return &Bridge{
		cfg:    cfg,
		bus:    b,
		reg:    reg,
		client: NewClient(cfg, logger),
		logger: logger.With("mcp_server", cfg.Name),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "steward_mcp_requests_total",
			Help:        "Bus requests served by an MCP server bridge.",
			ConstLabels: prometheus.Labels{"mcp_server": cfg.Name},
		}, []string{"op", "status"}),
	}
}

// Collectors exports the bridge's request counter. The registry registers
// it when the bridge is added.
func (br *Bridge) Collectors() []prometheus.Collector {
	return []prometheus.Collector{br.requests}
}

// Name returns the owner id of the bridge.
func (br *Bridge) Name() string { return br.cfg.Name }

// Tools returns the tools discovered at Start.
func (br *Bridge) Tools() []tools.ToolDescriptor { return br.tools }

// Resources returns the resources discovered at Start.
func (br *Bridge) Resources() []tools.ResourceDescriptor { return br.resources }

// Start connects to the server, discovers its tools and resources,
// subscribes on the bus, and registers the descriptors.
func (br *Bridge) Start(ctx context.Context) error {
	return br.StartWithTransport(ctx, nil)
}

// StartWithTransport is Start over an explicit MCP transport.
func (br *Bridge) StartWithTransport(ctx context.Context, transport mcp.Transport) error {
	connectCtx, cancel := context.WithTimeout(ctx, br.cfg.ConnectTimeout)
	defer cancel()

	if err := br.client.ConnectWithTransport(connectCtx, transport); err != nil {
		return err
	}

	var err error
	if br.tools, err = br.client.ListTools(connectCtx); err != nil {
		br.client.Close()
		return err
	}
	if br.resources, err = br.client.ListResources(connectCtx); err != nil {
		br.client.Close()
		return err
	}

	if br.sub, err = br.bus.Subscribe(br.cfg.Name); err != nil {
		br.client.Close()
		return fmt.Errorf("subscribing mcp server %q: %w", br.cfg.Name, err)
	}

	// Failed descriptors are logged; the rest stay usable.
	if err := br.reg.RegisterComponent(br); err != nil {
		br.logger.Warn("some mcp descriptors were not registered", "error", err)
	}
	br.logger.Info("mcp server attached", "tools", len(br.tools), "resources", len(br.resources))
	return nil
}

// Run answers bus requests until ctx is cancelled or the subscription
// ends, then detaches the server.
func (br *Bridge) Run(ctx context.Context) error {
	if br.sub == nil {
		return fmt.Errorf("mcp server %q: %w", br.cfg.Name, ErrNotConnected)
	}
	defer br.Close()

	err := bus.Serve(ctx, br.sub, br.handle)
	if errors.Is(err, context.Canceled) || errors.Is(err, bus.ErrClosed) {
		return nil
	}
	return err
}

// Close unregisters the server's descriptors, ends the subscription, and
// closes the session. It is safe to call more than once.
func (br *Bridge) Close() error {
	var err error
	br.closeOnce.Do(func() {
		removed := br.reg.UnregisterOwner(br.cfg.Name)
		if br.sub != nil {
			br.sub.Close()
		}
		err = br.client.Close()
		br.logger.Info("mcp server detached", "removed", removed)
	})
	return err
}

func (br *Bridge) handle(ctx context.Context, req *bus.Request) *bus.Response {
	resp := br.dispatch(ctx, req)
	status := "ok"
	if !resp.Success {
		status = "error"
	}
	br.requests.WithLabelValues(string(req.Op), status).Inc()
	return resp
}

func (br *Bridge) dispatch(ctx context.Context, req *bus.Request) *bus.Response {
	switch req.Op {
	case bus.OpCallTool:
		res, err := br.client.CallTool(ctx, req.Target, req.Args, bus.ProgressReporter(br.sub, req))
		if err != nil {
			var remote *RemoteError
			if !errors.As(err, &remote) {
				br.logger.Warn("mcp tool call failed", "tool", req.Target, "request_id", req.ID, "error", err)
			}
			return bus.Failure(err.Error())
		}
		return bus.Success(res)

	case bus.OpReadResource:
		content, err := br.client.ReadResource(ctx, req.Target)
		if err != nil {
			br.logger.Warn("mcp resource read failed", "uri", req.Target, "request_id", req.ID, "error", err)
			return bus.Failure(err.Error())
		}
		return bus.Success(&tools.Result{Text: content.Text, Blob: content.Blob})

	default:
		return bus.Failure(fmt.Sprintf("unsupported operation %q", req.Op))
	}
}

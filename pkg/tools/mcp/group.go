package mcp

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/steward/pkg/bus"
)

// Group runs the bridges of every configured server.
type Group struct {
	bridges []*Bridge
}

// Connect starts a bridge per server. A server that cannot be reached is
// logged and left out, so one broken server does not keep the others
// from serving.
func Connect(ctx context.Context, servers []ServerConfig, b *bus.Local, reg Registrar, logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Group{}
	for _, cfg := range servers {
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid mcp server config", "error", err)
			continue
		}
		br := NewBridge(cfg, b, reg, logger)
		if err := br.Start(ctx); err != nil {
			logger.Error("mcp server unavailable", "mcp_server", cfg.Name, "error", err)
			continue
		}
		g.bridges = append(g.bridges, br)
	}
	return g
}

// Bridges returns the connected bridges.
func (g *Group) Bridges() []*Bridge {
	return g.bridges
}

// Run serves every bridge until ctx is cancelled.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, br := range g.bridges {
		eg.Go(func() error { return br.Run(ctx) })
	}
	return eg.Wait()
}

// Close detaches every bridge.
func (g *Group) Close() {
	for _, br := range g.bridges {
		br.Close()
	}
}

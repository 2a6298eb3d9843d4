// Command server runs the steward tool-invocation and conversation core.
//
// Configuration is read from a YAML or TOML file, a .env file and STEWARD_*
// environment variables (see pkg/config). The most common variables:
//
//	STEWARD_CONFIG       - config file path
//	STEWARD_BACKEND_URL  - Chat Completions backend URL (required)
//	STEWARD_MODEL        - model name sent to the backend
//	STEWARD_PORT         - listen port (default: 8080)
//	STEWARD_STORAGE      - history store: "memory", "postgres" or "sqlite"
//	STEWARD_MCP_SERVERS  - JSON list of MCP servers to attach as components
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/steward/pkg/bus"
	"github.com/rhuss/steward/pkg/config"
	"github.com/rhuss/steward/pkg/confirm"
	"github.com/rhuss/steward/pkg/debug"
	"github.com/rhuss/steward/pkg/engine"
	"github.com/rhuss/steward/pkg/identity"
	"github.com/rhuss/steward/pkg/provider/openaicompat"
	"github.com/rhuss/steward/pkg/router"
	"github.com/rhuss/steward/pkg/tools/mcp"
	"github.com/rhuss/steward/pkg/tools/registry"
	"github.com/rhuss/steward/pkg/transport"
	transporthttp "github.com/rhuss/steward/pkg/transport/http"
	transportmcp "github.com/rhuss/steward/pkg/transport/mcp"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (YAML or TOML)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	mcp.ClientVersion = version

	store, err := newHistoryStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating history store: %w", err)
	}
	defer store.Close()
	logger.Info("history store ready", "type", cfg.Storage.Type)

	reg := registry.New(
		registry.WithDuplicatePolicy(registry.DuplicatePolicy(cfg.Registry.DuplicatePolicy)),
		registry.WithLogger(logger),
	)

	b := bus.NewLocal(
		bus.WithTimeout(cfg.Bus.Timeout),
		bus.WithMailboxSize(cfg.Bus.MailboxSize),
		bus.WithLogger(logger),
	)
	defer b.Close()

	rt := router.New(reg, router.WithBus(b), router.WithLogger(logger))

	bridges := mcp.Connect(ctx, mcpServers(cfg.MCP.Servers), b, reg, logger)
	defer bridges.Close()

	prov, err := openaicompat.New(openaicompat.Config{
		BaseURL:      cfg.Engine.BackendURL,
		APIKey:       cfg.Engine.APIKey,
		Timeout:      cfg.Engine.RequestTimeout,
		ModelMapping: cfg.Engine.ModelMapping,
		ToolCalling:  cfg.Engine.ToolCalling,
	})
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()
	backendModel := cfg.Engine.Model
	if mapped, ok := cfg.Engine.ModelMapping[backendModel]; ok {
		backendModel = mapped
	}
	checkModel(ctx, prov, backendModel, logger)

	loop, err := engine.NewStepLoop(prov, cfg.Engine.Model,
		engine.WithSampling(cfg.Engine.Temperature, cfg.Engine.MaxTokens),
		engine.WithParallelToolCalls(cfg.Engine.ParallelToolCalls),
		engine.WithLoopLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("creating step loop: %w", err)
	}

	eng, err := engine.New(engine.Deps{
		Model:    loop,
		Catalog:  reg,
		Invoker:  rt,
		History:  store,
		Identity: identity.Static(cfg.Identity),
		Confirmations: confirm.NewStore(
			confirm.WithPolicy(confirm.Policy(cfg.Confirmation.Policy)),
			confirm.WithStoreLogger(logger),
		),
		ToolSet: engine.ToolSetConfig{DenyByInterface: cfg.Engine.DenyByInterface},
		Logger:  logger,
	}, engine.Config{
		Model:             cfg.Engine.Model,
		StepLimit:         cfg.Engine.StepLimit,
		HistoryLimit:      cfg.Engine.HistoryLimit,
		TurnTimeout:       cfg.Engine.TurnTimeout,
		ParallelToolCalls: cfg.Engine.ParallelToolCalls,
		Temperature:       cfg.Engine.Temperature,
		MaxTokens:         cfg.Engine.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	adapter := transporthttp.NewAdapter(eng, transporthttp.Config{
		MaxBodySize:    cfg.Server.MaxBodySize,
		HistoryLevel:   cfg.Server.HistoryTier,
		HealthCheck:    store.HealthCheck,
		DisableMetrics: !cfg.Observability.Metrics.Enabled,
	}, logger,
		transport.Recovery(logger),
		transport.RequestID(),
		transport.Logging(logger),
	)

	mux := http.NewServeMux()
	mux.Handle("/", adapter.Handler())
	if path := cfg.Server.MCPPath; path != "-" && path != "" {
		mcpServer := transportmcp.New(reg, rt, transportmcp.WithLogger(logger), transportmcp.WithVersion(version))
		mux.Handle(path, mcpServer.Handler())
		logger.Info("mcp endpoint enabled", "path", path)
	}

	handler, err := authenticate(cfg.Auth, mux)
	if err != nil {
		return err
	}

	srv := transporthttp.NewServer(handler,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		return bridges.Run(gctx)
	})

	logger.Info("server starting",
		"version", version,
		"port", cfg.Server.Port,
		"backend", cfg.Engine.BackendURL,
		"model", cfg.Engine.Model,
		"auth", cfg.Auth.Type,
		"mcp_servers", len(bridges.Bridges()),
		"debug", strings.Join(debug.Categories(), ","),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// mcpServers converts the configured MCP servers into bridge configs.
func mcpServers(servers []config.MCPServerConfig) []mcp.ServerConfig {
	out := make([]mcp.ServerConfig, 0, len(servers))
	for _, s := range servers {
		out = append(out, mcp.ServerConfig{
			Name:           s.Name,
			Transport:      s.Transport,
			URL:            s.URL,
			Headers:        s.Headers,
			Visibility:     s.Visibility,
			ToolVisibility: s.ToolVisibility,
			Destructive:    s.Destructive,
			Auth: mcp.AuthConfig{
				Type:         s.Auth.Type,
				TokenURL:     s.Auth.TokenURL,
				ClientID:     s.Auth.ClientID,
				ClientSecret: s.Auth.ClientSecret,
				Scopes:       s.Auth.Scopes,
			},
		})
	}
	return out
}

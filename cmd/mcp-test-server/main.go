// Command mcp-test-server runs a small MCP server for trying out the
// steward MCP bridge. It provides "echo", "get_time" and "slow_count"
// (which reports progress) plus a "notes://welcome" resource.
//
// Configuration:
//
//	PORT - Listen port (default: 8080)
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	transporthttp "github.com/rhuss/steward/pkg/transport/http"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := newServer()
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	slog.Info("mcp test server starting", "port", port)
	srv := transporthttp.NewServer(mux, transporthttp.WithAddr(":"+port))
	if err := srv.ListenAndServe(ctx); err != nil {
		slog.Error("mcp test server failed", "error", err)
		os.Exit(1)
	}
}

// Command mock-backend runs a deterministic Chat Completions server for
// local runs and integration tests. Replies are derived from the request:
//
//   - a prompt of the form "call <tool> <json arguments>" produces a tool
//     call when the tool is offered
//   - a conversation ending in a tool result is answered with that result
//   - anything else is echoed back
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	transporthttp "github.com/rhuss/steward/pkg/transport/http"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := transporthttp.NewServer(newMux(slog.Default()), transporthttp.WithAddr(":"+port))
	slog.Info("mock backend starting", "port", port)
	if err := srv.ListenAndServe(ctx); err != nil {
		slog.Error("mock backend failed", "error", err)
		os.Exit(1)
	}
}

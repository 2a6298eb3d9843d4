package main

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// countStep is the pause between two slow_count progress updates.
var countStep = 200 * time.Millisecond

type echoInput struct {
	Message string `json:"message" jsonschema:"the message to echo back"`
}

type countInput struct {
	To int `json:"to" jsonschema:"count up to this number (1 to 20)"`
}

func newServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "steward-test-mcp", Version: "v1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Echoes the provided message back",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in echoInput) (*mcp.CallToolResult, struct{}, error) {
		return textResult("Echo: " + in.Message), struct{}{}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_time",
		Description: "Returns the current UTC time",
	}, func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, struct{}, error) {
		return textResult("Current time: " + time.Now().UTC().Format(time.RFC3339)), struct{}{}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "slow_count",
		Description: "Counts slowly, reporting progress after every number",
	}, slowCount)

	server.AddResource(&mcp.Resource{
		Name:     "welcome",
		URI:      "notes://welcome",
		MIMEType: "text/plain",
	}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
			{URI: req.Params.URI, MIMEType: "text/plain", Text: "Welcome to the steward test server."},
		}}, nil
	})

	return server
}

func slowCount(ctx context.Context, req *mcp.CallToolRequest, in countInput) (*mcp.CallToolResult, struct{}, error) {
	if in.To < 1 || in.To > 20 {
		return nil, struct{}{}, fmt.Errorf("to must be between 1 and 20, got %d", in.To)
	}

	token := req.Params.GetProgressToken()
	for i := 1; i <= in.To; i++ {
		select {
		case <-ctx.Done():
			return nil, struct{}{}, ctx.Err()
		case <-time.After(countStep):
		}
		if token != nil {
			req.Session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
				ProgressToken: token,
				Progress:      float64(i),
				Total:         float64(in.To),
				Message:       fmt.Sprintf("counted %d", i),
			})
		}
	}
	return textResult(fmt.Sprintf("counted to %d", in.To)), struct{}{}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

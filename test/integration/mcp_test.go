package integration

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"testing"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// bearer adds an Authorization header to every request.
type bearer struct {
	token string
	base  http.RoundTripper
}

func (b bearer) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return b.base.RoundTrip(req)
}

func connectMCP(t *testing.T, token string) *gomcp.ClientSession {
	t.Helper()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "integration", Version: "1.0.0"}, nil)
	session, err := client.Connect(t.Context(), &gomcp.StreamableClientTransport{
		Endpoint:   testEnv.BaseURL() + "/mcp",
		HTTPClient: &http.Client{Transport: bearer{token: token, base: http.DefaultTransport}},
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestMCPEndpointToolsByTier(t *testing.T) {
	tests := []struct {
		token string
		want  []string
	}{
		{publicKey, []string{"echo"}},
		{trustedKey, []string{"echo", "member_lookup", "remote_echo"}},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			session := connectMCP(t, tt.token)
			var got []string
			for tool, err := range session.Tools(t.Context(), nil) {
				if err != nil {
					t.Fatalf("Tools: %v", err)
				}
				got = append(got, tool.Name)
			}
			slices.Sort(got)
			if !slices.Equal(got, tt.want) {
				t.Errorf("tools = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMCPEndpointCallsThroughRouter(t *testing.T) {
	session := connectMCP(t, trustedKey)

	res, err := session.CallTool(context.Background(), &gomcp.CallToolParams{
		Name:      "remote_echo",
		Arguments: map[string]any{"message": "relayed"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	var text []string
	for _, c := range res.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			text = append(text, tc.Text)
		}
	}
	if got := strings.Join(text, ""); got != "remote: relayed" {
		t.Errorf("text = %q", got)
	}
}

func TestMCPEndpointRequiresAuth(t *testing.T) {
	resp := doRequest(t, http.MethodPost, "/mcp", "", map[string]any{"jsonrpc": "2.0", "id": 1, "method": "ping"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

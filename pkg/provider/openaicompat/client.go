package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/debug"
	"github.com/rhuss/steward/pkg/provider"
)

// DefaultTimeout bounds a single completion request.
const DefaultTimeout = 120 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is the backend root, without the /v1 suffix.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds each HTTP request (default: 120s).
	Timeout time.Duration

	// ModelMapping rewrites model names before they are sent, for proxies
	// that route by alias.
	ModelMapping map[string]string

	// ToolCalling declares whether the backend supports function calling
	// (default: true).
	ToolCalling *bool
}

// Client performs HTTP requests against an OpenAI-compatible Chat Completions
// backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	caps       provider.ProviderCapabilities

	// ModelMapper is an optional function that transforms the model name
	// before sending it to the backend. If nil, the model name is used as-is.
	ModelMapper func(string) string
}

var _ provider.Provider = (*Client)(nil)

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openaicompat: BaseURL is required")
	}
	c := NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if cfg.ToolCalling != nil {
		c.caps.ToolCalling = *cfg.ToolCalling
	}
	if len(cfg.ModelMapping) > 0 {
		mapping := cfg.ModelMapping
		c.ModelMapper = func(model string) string {
			if mapped, ok := mapping[model]; ok {
				return mapped
			}
			return model
		}
	}
	return c, nil
}

// NewClient creates a new Client for an OpenAI-compatible backend.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		caps:    provider.ProviderCapabilities{ToolCalling: true},
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return "openai-compatible"
}

// Capabilities returns what this provider supports.
func (c *Client) Capabilities() provider.ProviderCapabilities {
	return c.caps
}

// Complete performs non-streaming inference against the Chat Completions endpoint.
func (c *Client) Complete(ctx context.Context, req *provider.ProviderRequest) (*provider.ProviderResponse, error) {
	reqCopy := *req
	if c.ModelMapper != nil {
		reqCopy.Model = c.ModelMapper(reqCopy.Model)
	}

	body, err := json.Marshal(TranslateToChat(&reqCopy))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	debug.Log("providers", "chat completion request",
		"model", reqCopy.Model, "messages", len(reqCopy.Messages), "tools", len(reqCopy.Tools))
	debug.Raw("providers", string(body))

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	debug.Raw("providers", string(data))

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(data, &chatResp); err != nil {
		debug.Log("providers", "unparseable backend response", "body", debug.Truncate(string(data), 512))
		return nil, api.NewModelError("failed to parse backend response", err)
	}

	return TranslateResponse(&chatResp)
}

// ListModels returns available models from the backend by querying
// the /v1/models endpoint.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var modelsResp ChatModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&modelsResp); err != nil {
		return nil, api.NewModelError("failed to parse models response", err)
	}

	models := make([]provider.ModelInfo, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		models = append(models, provider.ModelInfo{
			ID:      m.ID,
			Object:  m.Object,
			OwnedBy: m.OwnedBy,
		})
	}
	return models, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body *bytes.Reader) (*http.Request, error) {
	var (
		httpReq *http.Request
		err     error
	)
	if body == nil {
		httpReq, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	}
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return httpReq, nil
}

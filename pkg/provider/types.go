package provider

import (
	"encoding/json"

	"github.com/rhuss/steward/pkg/api"
)

// Message roles understood by chat completion backends.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ProviderCapabilities declares what features the backend supports.
type ProviderCapabilities struct {
	// ToolCalling indicates whether the provider supports function/tool calls.
	ToolCalling bool

	// MaxContextWindow is the maximum token count (0 = unknown/unlimited).
	MaxContextWindow int
}

// ProviderRequest is the backend-facing request for one step of a turn.
type ProviderRequest struct {
	Model       string            `json:"model"`
	Messages    []ProviderMessage `json:"messages"`
	Tools       []ProviderTool    `json:"tools,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	User        string            `json:"user,omitempty"`
}

// ProviderMessage represents a message in the provider's conversation format.
type ProviderMessage struct {
	Role       string             `json:"role"`
	Content    string             `json:"content"`
	ToolCalls  []ProviderToolCall `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	Name       string             `json:"name,omitempty"`
}

// ProviderToolCall represents a tool call entry in an assistant message.
type ProviderToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function ProviderFunctionCall `json:"function"`
}

// ProviderFunctionCall holds the function name and arguments for a tool call.
// Arguments is the raw string the model produced and may not be valid JSON.
type ProviderFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ProviderTool represents a tool definition in provider format.
type ProviderTool struct {
	Type     string              `json:"type"`
	Function ProviderFunctionDef `json:"function"`
}

// ProviderFunctionDef holds a function definition for tool use.
type ProviderFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// FinishReason reports why the backend stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
)

// ProviderResponse is the backend's answer to one step.
type ProviderResponse struct {
	Text         string             `json:"text"`
	ToolCalls    []ProviderToolCall `json:"tool_calls,omitempty"`
	FinishReason FinishReason       `json:"finish_reason"`
	Usage        api.Usage          `json:"usage"`
	Model        string             `json:"model"`
}

// ModelInfo holds information about a model served by the provider.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

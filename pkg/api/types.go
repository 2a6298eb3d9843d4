package api

import (
	"encoding/json"
	"time"

	"github.com/rhuss/steward/pkg/permission"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known turn role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one append-only entry of a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage holds token counts accumulated over every model step of a turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// ToolResult records one tool call made during a turn. Exactly one of
// Output and Text is normally set; Error is set when the call failed.
type ToolResult struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Text      string          `json:"text,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// PendingConfirmation describes a destructive action that needs explicit
// consent before it is executed.
type PendingConfirmation struct {
	ToolName    string          `json:"tool_name"`
	Description string          `json:"description"`
	Args        json.RawMessage `json:"args,omitempty"`

	// RequiredLevel is the level a caller needs to see or resolve the
	// confirmation: the level of the caller whose turn created it. It is
	// never read from or written to the wire; empty means anchor.
	RequiredLevel permission.Level `json:"-"`
}

// Required returns the level needed to resolve the confirmation.
func (p PendingConfirmation) Required() permission.Level {
	return p.RequiredLevel.VisibilityOrDefault()
}

// AgentResponse is the structured result of a chat turn or of resolving a
// pending confirmation.
type AgentResponse struct {
	ConversationID      string               `json:"conversation_id"`
	Text                string               `json:"text"`
	Usage               Usage                `json:"usage"`
	ToolResults         []ToolResult         `json:"tool_results"`
	PendingConfirmation *PendingConfirmation `json:"pending_confirmation,omitempty"`
}

// ChatRequest is the transport-level request body for one chat turn.
// The caller's permission level is never taken from the body.
type ChatRequest struct {
	Message     string `json:"message"`
	ChannelID   string `json:"channel_id,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
	UserID      string `json:"user_id,omitempty"`
}

// ConfirmRequest is the transport-level request body for resolving a
// pending confirmation.
type ConfirmRequest struct {
	Confirmed bool `json:"confirmed"`
}

// ToolInfo is the public listing form of a registered tool.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Owner       string          `json:"owner"`
	Visibility  string          `json:"visibility"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ResourceInfo is the public listing form of a registered resource.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Description string `json:"description"`
	MIMEType    string `json:"mime_type,omitempty"`
	Owner       string `json:"owner"`
}

// List is a generic list envelope.
type List[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

package tools

import (
	"context"

	"github.com/rhuss/steward/pkg/permission"
)

// Interface identifiers for CallContext.Interface.
const (
	InterfaceHTTP         = "http"
	InterfaceMCP          = "mcp"
	InterfaceCLI          = "cli"
	InterfaceConfirmation = "confirmation"
)

// Progress is an intermediate update emitted by a running tool.
type Progress struct {
	Progress float64 `json:"progress"`
	Total    float64 `json:"total,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// ProgressSink receives progress updates for one invocation.
type ProgressSink interface {
	Report(ctx context.Context, p Progress)
}

// ProgressFunc adapts a function to a ProgressSink.
type ProgressFunc func(ctx context.Context, p Progress)

// Report calls f(ctx, p).
func (f ProgressFunc) Report(ctx context.Context, p Progress) {
	f(ctx, p)
}

// CallContext is the per-invocation metadata passed to every handler.
// It is built fresh for each call and never cached.
type CallContext struct {
	Level          permission.Level `json:"level"`
	ConversationID string           `json:"conversation_id,omitempty"`
	ChannelID      string           `json:"channel_id,omitempty"`
	ChannelName    string           `json:"channel_name,omitempty"`
	Interface      string           `json:"interface"`
	UserID         string           `json:"user_id,omitempty"`

	// Progress is optional and never crosses a process boundary.
	Progress ProgressSink `json:"-"`
}

// ReportProgress forwards p to the sink when one is attached.
func (c CallContext) ReportProgress(ctx context.Context, p Progress) {
	if c.Progress != nil {
		c.Progress.Report(ctx, p)
	}
}

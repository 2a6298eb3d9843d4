package bus

import (
	"encoding/json"
	"time"

	"github.com/rhuss/steward/pkg/tools"
)

// Operation selects what the owner is asked to do.
type Operation string

const (
	OpCallTool     Operation = "tool.call"
	OpReadResource Operation = "resource.read"
)

// Request is addressed to one owner and answered by exactly one Response.
type Request struct {
	// ID is the correlation id. Request assigns one when empty.
	ID string `json:"id"`

	// Owner is the id of the component that must answer.
	Owner string `json:"owner"`

	Op Operation `json:"op"`

	// Target is the tool name or resource uri.
	Target string `json:"target"`

	Args json.RawMessage `json:"args,omitempty"`

	// Call carries the caller metadata. Its progress sink is not
	// transmitted; ProgressToken stands in for it.
	Call tools.CallContext `json:"call"`

	// ProgressToken is set when the caller listens for progress updates.
	ProgressToken string `json:"progress_token,omitempty"`

	// Deadline is the time after which the caller stops waiting.
	Deadline time.Time `json:"deadline,omitempty"`
}

// Response answers a Request. Success false means the owner reported a
// failure described by Error.
type Response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Text    string          `json:"text,omitempty"`
	Blob    []byte          `json:"blob,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Success builds a successful response from a tool result.
func Success(r *tools.Result) *Response {
	resp := &Response{Success: true}
	if r != nil {
		resp.Data = r.Data
		resp.Text = r.Text
		resp.Blob = r.Blob
	}
	return resp
}

// Failure builds a failed response carrying message.
func Failure(message string) *Response {
	return &Response{Success: false, Error: message}
}

// Result unwraps a successful response into a tool result.
func (r *Response) Result() *tools.Result {
	return &tools.Result{Data: r.Data, Text: r.Text, Blob: r.Blob}
}

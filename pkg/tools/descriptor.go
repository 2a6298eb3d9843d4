package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/rhuss/steward/pkg/permission"
)

// Kind classifies how a tool or resource is hosted.
type Kind int

const (
	// KindLocal descriptors run their handler in-process.
	KindLocal Kind = iota

	// KindRemote descriptors are executed by their owning component,
	// reached through a correlated request on the message bus.
	KindRemote
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	if k == KindRemote {
		return "remote"
	}
	return "local"
}

// Handler executes a tool call.
type Handler interface {
	Handle(ctx context.Context, args json.RawMessage, call CallContext) (*Result, error)
}

// HandlerFunc adapts an ordinary function to a Handler.
type HandlerFunc func(ctx context.Context, args json.RawMessage, call CallContext) (*Result, error)

// Handle calls f(ctx, args, call).
func (f HandlerFunc) Handle(ctx context.Context, args json.RawMessage, call CallContext) (*Result, error) {
	return f(ctx, args, call)
}

// ResourceReader reads the contents of a resource.
type ResourceReader func(ctx context.Context, uri string, call CallContext) (*ResourceContent, error)

// ToolDescriptor is the registered definition of a tool.
type ToolDescriptor struct {
	// Name is unique across the registry and is what the model calls.
	Name string

	// Description is shown to the model.
	Description string

	// InputSchema is the JSON Schema the call arguments must satisfy.
	// A nil schema accepts any JSON object.
	InputSchema *jsonschema.Schema

	// Kind selects in-process or bus dispatch.
	Kind Kind

	// Handler runs local tools. It must be nil for remote tools.
	Handler Handler

	// Visibility is the minimum caller level. Empty means anchor.
	Visibility permission.Level

	// Destructive marks tools that callers should only run after explicit
	// consent.
	Destructive bool
}

// Validate checks the descriptor for the fields the router relies on.
func (d ToolDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: tool name is empty", ErrInvalidDescriptor)
	}
	if d.Kind == KindLocal && d.Handler == nil {
		return fmt.Errorf("%w: local tool %q has no handler", ErrInvalidDescriptor, d.Name)
	}
	if d.Visibility != "" && !d.Visibility.Valid() {
		return fmt.Errorf("%w: tool %q has unknown visibility %q", ErrInvalidDescriptor, d.Name, d.Visibility)
	}
	return nil
}

// ResourceDescriptor is the registered definition of a readable resource.
// Resources always have the most restrictive visibility.
type ResourceDescriptor struct {
	URI         string
	Description string
	MIMEType    string
	Kind        Kind

	// Read serves local resources. It must be nil for remote resources.
	Read ResourceReader
}

// Validate checks the descriptor for the fields the router relies on.
func (d ResourceDescriptor) Validate() error {
	if d.URI == "" {
		return fmt.Errorf("%w: resource uri is empty", ErrInvalidDescriptor)
	}
	if d.Kind == KindLocal && d.Read == nil {
		return fmt.Errorf("%w: local resource %q has no reader", ErrInvalidDescriptor, d.URI)
	}
	return nil
}

// Result is the output of a successful tool call. Data holds structured
// output; Text holds output already formatted for the model. Blob holds
// binary output and is base64 on the wire.
type Result struct {
	Data json.RawMessage `json:"data,omitempty"`
	Text string          `json:"text,omitempty"`
	Blob []byte          `json:"blob,omitempty"`
}

// TextResult returns a Result carrying formatted text.
func TextResult(text string) *Result {
	return &Result{Text: text}
}

// JSONResult marshals v into a structured Result.
func JSONResult(v any) (*Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &Result{Data: data}, nil
}

// String renders the result for the model: the text if present, otherwise
// the structured data, otherwise the base64 of the blob.
func (r *Result) String() string {
	if r == nil {
		return ""
	}
	if r.Text != "" {
		return r.Text
	}
	if len(r.Data) == 0 && len(r.Blob) > 0 {
		return base64.StdEncoding.EncodeToString(r.Blob)
	}
	return string(r.Data)
}

// ResourceContent is the body of a resource read.
type ResourceContent struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     []byte `json:"blob,omitempty"`
}

package provider

import (
	"context"
)

// Provider abstracts an LLM inference backend. Each adapter handles its own
// wire protocol internally.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai-compatible").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() ProviderCapabilities

	// Complete performs one non-streaming inference step.
	Complete(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)

	// ListModels returns available models from the backend.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}

package provider

import (
	"github.com/rhuss/steward/pkg/api"
)

// ValidateCapabilities checks whether the request is compatible with the
// provider's declared capabilities. Returns an APIError identifying the
// unsupported feature, or nil if the request is compatible.
func ValidateCapabilities(caps ProviderCapabilities, req *ProviderRequest) *api.APIError {
	if len(req.Tools) > 0 && !caps.ToolCalling {
		return api.NewInvalidRequestError("tools",
			"the configured provider does not support tool calling")
	}
	for _, m := range req.Messages {
		if m.Role == RoleTool && !caps.ToolCalling {
			return api.NewInvalidRequestError("messages",
				"the configured provider does not support tool results")
		}
	}
	return nil
}

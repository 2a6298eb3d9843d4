package transport

import (
	"encoding/json"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/tools/registry"
)

// ToolInfos converts registry entries to their listing form.
func ToolInfos(entries []registry.ToolEntry) []api.ToolInfo {
	out := make([]api.ToolInfo, 0, len(entries))
	for _, e := range entries {
		info := api.ToolInfo{
			Name:        e.Tool.Name,
			Description: e.Tool.Description,
			Owner:       e.OwnerID,
			Visibility:  string(e.Visibility()),
		}
		if e.Tool.InputSchema != nil {
			if data, err := json.Marshal(e.Tool.InputSchema); err == nil {
				info.InputSchema = data
			}
		}
		out = append(out, info)
	}
	return out
}

// ResourceInfos converts registry entries to their listing form.
func ResourceInfos(entries []registry.ResourceEntry) []api.ResourceInfo {
	out := make([]api.ResourceInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, api.ResourceInfo{
			URI:         e.Resource.URI,
			Description: e.Resource.Description,
			MIMEType:    e.Resource.MIMEType,
			Owner:       e.OwnerID,
		})
	}
	return out
}

package engine

import (
	"github.com/rhuss/steward/pkg/permission"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/tools/registry"
)

// LevelLister lists the tools visible at a permission level.
type LevelLister interface {
	ListForLevel(level permission.Level) []registry.ToolEntry
}

// ActiveToolSet is the set of tools offered to the model for one turn.
type ActiveToolSet struct {
	Level permission.Level
	Tools []registry.ToolEntry
}

// Names returns the tool names in registration order.
func (s ActiveToolSet) Names() []string {
	return registry.Names(s.Tools)
}

// ToolSetConfig is the immutable configuration of a ToolSetFactory.
type ToolSetConfig struct {
	// DenyByInterface hides tools from callers on a given interface, for
	// example keeping admin tools off a public chat bridge.
	DenyByInterface map[string][]string
}

// ToolSetFactory computes the active tool set for one call.
type ToolSetFactory func(call tools.CallContext) ActiveToolSet

// NewToolSetFactory returns a factory that queries lister on every call, so
// tools registered or removed between turns are reflected immediately. The
// config is copied; later changes to cfg have no effect.
func NewToolSetFactory(lister LevelLister, cfg ToolSetConfig) ToolSetFactory {
	deny := make(map[string]map[string]bool, len(cfg.DenyByInterface))
	for iface, names := range cfg.DenyByInterface {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		deny[iface] = set
	}

	return func(call tools.CallContext) ActiveToolSet {
		level := call.Level.OrDefault()
		entries := lister.ListForLevel(level)
		if denied := deny[call.Interface]; len(denied) > 0 {
			kept := entries[:0:0]
			for _, e := range entries {
				if !denied[e.Tool.Name] {
					kept = append(kept, e)
				}
			}
			entries = kept
		}
		return ActiveToolSet{Level: level, Tools: entries}
	}
}

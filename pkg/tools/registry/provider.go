// Package registry holds the tool and resource descriptors contributed by
// independently developed components and answers permission-filtered
// listings.
//
// Registration stores descriptors unconditionally; permission is evaluated
// when a listing is requested, so the set offered to one caller is always
// computed from the registry state at that moment and the caller's level.
// Listings preserve insertion order.
package registry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/steward/pkg/tools"
)

// Component is a unit that contributes tools and resources under one owner
// id.
type Component interface {
	// Name returns the owner id used for every descriptor the component
	// contributes.
	Name() string

	// Tools returns the tool descriptors this component contributes.
	Tools() []tools.ToolDescriptor

	// Resources returns the resource descriptors this component contributes.
	Resources() []tools.ResourceDescriptor
}

// CollectorProvider is implemented by components that export their own
// Prometheus collectors.
type CollectorProvider interface {
	Collectors() []prometheus.Collector
}

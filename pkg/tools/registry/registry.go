package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/steward/pkg/permission"
	"github.com/rhuss/steward/pkg/tools"
)

var (
	registeredTools = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "steward_registry_tools",
			Help: "Registered tools by visibility",
		},
		[]string{"visibility"},
	)

	registeredResources = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "steward_registry_resources",
			Help: "Registered resources",
		},
	)

	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_registry_registrations_total",
			Help: "Tool and resource registrations by outcome",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(registeredTools, registeredResources, registrations)
}

// DuplicatePolicy decides what happens when a name or uri is registered
// twice.
type DuplicatePolicy string

const (
	// Overwrite replaces the existing entry (last write wins). The entry
	// keeps its original position in listings.
	Overwrite DuplicatePolicy = "overwrite"

	// Reject refuses the second registration with tools.ErrDuplicate.
	Reject DuplicatePolicy = "reject"
)

// ToolEntry is a registered tool with its owner.
type ToolEntry struct {
	OwnerID string
	Tool    tools.ToolDescriptor

	// Schema is the compiled input contract of Tool.
	Schema *tools.Schema
}

// Visibility returns the effective visibility of the tool.
func (e ToolEntry) Visibility() permission.Level {
	return e.Tool.Visibility.VisibilityOrDefault()
}

// ResourceEntry is a registered resource with its owner.
type ResourceEntry struct {
	OwnerID  string
	Resource tools.ResourceDescriptor
}

// Visibility returns the fixed visibility of every resource.
func (ResourceEntry) Visibility() permission.Level {
	return permission.DefaultVisibility
}

// Registry stores tool and resource entries keyed by name and uri.
// All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	policy DuplicatePolicy
	logger *slog.Logger

	toolOrder []string
	toolIndex map[string]ToolEntry

	resourceOrder []string
	resourceIndex map[string]ResourceEntry
}

// Option configures a Registry.
type Option func(*Registry)

// WithDuplicatePolicy sets the duplicate registration policy.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithLogger sets the logger used for registration events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty Registry. The default duplicate policy is Overwrite.
func New(opts ...Option) *Registry {
	r := &Registry{
		policy:        Overwrite,
		logger:        slog.Default(),
		toolIndex:     make(map[string]ToolEntry),
		resourceIndex: make(map[string]ResourceEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterTool stores a tool descriptor owned by ownerID. Permission is not
// evaluated here.
func (r *Registry) RegisterTool(ownerID string, d tools.ToolDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	schema, err := tools.CompileSchema(d.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %q: %w", d.Name, err)
	}
	d.Visibility = d.Visibility.VisibilityOrDefault()

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, dup := r.toolIndex[d.Name]
	if dup {
		if r.policy == Reject {
			registrations.WithLabelValues("tool", "rejected").Inc()
			return fmt.Errorf("tool %q (owner %s): %w by %s", d.Name, ownerID, tools.ErrDuplicate, existing.OwnerID)
		}
		r.logger.Warn("tool registration overwrites existing entry",
			"tool", d.Name,
			"previous_owner", existing.OwnerID,
			"owner", ownerID,
		)
	} else {
		r.toolOrder = append(r.toolOrder, d.Name)
	}

	r.toolIndex[d.Name] = ToolEntry{OwnerID: ownerID, Tool: d, Schema: schema}
	r.updateGaugesLocked()

	outcome := "new"
	if dup {
		outcome = "overwrite"
	}
	registrations.WithLabelValues("tool", outcome).Inc()
	r.logger.Debug("tool registered", "tool", d.Name, "owner", ownerID, "visibility", d.Visibility, "kind", d.Kind)
	return nil
}

// RegisterResource stores a resource descriptor owned by ownerID.
func (r *Registry) RegisterResource(ownerID string, d tools.ResourceDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, dup := r.resourceIndex[d.URI]
	if dup {
		if r.policy == Reject {
			registrations.WithLabelValues("resource", "rejected").Inc()
			return fmt.Errorf("resource %q (owner %s): %w by %s", d.URI, ownerID, tools.ErrDuplicate, existing.OwnerID)
		}
		r.logger.Warn("resource registration overwrites existing entry",
			"uri", d.URI,
			"previous_owner", existing.OwnerID,
			"owner", ownerID,
		)
	} else {
		r.resourceOrder = append(r.resourceOrder, d.URI)
	}

	r.resourceIndex[d.URI] = ResourceEntry{OwnerID: ownerID, Resource: d}
	r.updateGaugesLocked()

	outcome := "new"
	if dup {
		outcome = "overwrite"
	}
	registrations.WithLabelValues("resource", outcome).Inc()
	return nil
}

// RegisterComponent registers every tool and resource a component
// contributes under the component's name. Registration continues past
// individual failures; all errors are joined.
func (r *Registry) RegisterComponent(c Component) error {
	var errs []error
	for _, d := range c.Tools() {
		if err := r.RegisterTool(c.Name(), d); err != nil {
			errs = append(errs, err)
		}
	}
	for _, d := range c.Resources() {
		if err := r.RegisterResource(c.Name(), d); err != nil {
			errs = append(errs, err)
		}
	}

	if cp, ok := c.(CollectorProvider); ok {
		for _, col := range cp.Collectors() {
			if err := prometheus.Register(col); err != nil {
				r.logger.Debug("collector already registered", "component", c.Name(), "error", err)
			}
		}
	}

	r.logger.Info("registered component",
		"component", c.Name(),
		"tools", len(c.Tools()),
		"resources", len(c.Resources()),
	)
	return errors.Join(errs...)
}

// UnregisterOwner removes every tool and resource owned by ownerID and
// returns how many entries were removed.
func (r *Registry) UnregisterOwner(ownerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	keptTools := r.toolOrder[:0]
	for _, name := range r.toolOrder {
		if r.toolIndex[name].OwnerID == ownerID {
			delete(r.toolIndex, name)
			removed++
			continue
		}
		keptTools = append(keptTools, name)
	}
	r.toolOrder = keptTools

	keptResources := r.resourceOrder[:0]
	for _, uri := range r.resourceOrder {
		if r.resourceIndex[uri].OwnerID == ownerID {
			delete(r.resourceIndex, uri)
			removed++
			continue
		}
		keptResources = append(keptResources, uri)
	}
	r.resourceOrder = keptResources

	r.updateGaugesLocked()
	return removed
}

// List returns every tool entry in insertion order, unfiltered.
func (r *Registry) List() []ToolEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]ToolEntry, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		entries = append(entries, r.toolIndex[name])
	}
	return entries
}

// ListForLevel returns the tool entries a caller at level may see, in
// insertion order. The result reflects the registry state at the time of
// the call; nothing is cached.
func (r *Registry) ListForLevel(level permission.Level) []ToolEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []ToolEntry
	for _, name := range r.toolOrder {
		e := r.toolIndex[name]
		if permission.HasPermission(level, e.Visibility()) {
			entries = append(entries, e)
		}
	}
	return entries
}

// ListResources returns every resource entry in insertion order.
func (r *Registry) ListResources() []ResourceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]ResourceEntry, 0, len(r.resourceOrder))
	for _, uri := range r.resourceOrder {
		entries = append(entries, r.resourceIndex[uri])
	}
	return entries
}

// LookupTool returns the entry registered under name.
func (r *Registry) LookupTool(name string) (ToolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.toolIndex[name]
	return e, ok
}

// LookupResource returns the entry registered under uri.
func (r *Registry) LookupResource(uri string) (ResourceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.resourceIndex[uri]
	return e, ok
}

// updateGaugesLocked refreshes the registry gauges. Callers hold r.mu.
func (r *Registry) updateGaugesLocked() {
	counts := make(map[permission.Level]int, 3)
	for _, e := range r.toolIndex {
		counts[e.Visibility()]++
	}
	for _, l := range permission.Levels() {
		registeredTools.WithLabelValues(l.String()).Set(float64(counts[l]))
	}
	registeredResources.Set(float64(len(r.resourceIndex)))
}

// Names returns the tool names of entries, preserving order.
func Names(entries []ToolEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Tool.Name
	}
	return names
}

package engine

import (
	"sort"
	"sync"
)

// Registry maps plugin ids to plugin instances.
type Registry struct {
	// mu protects the registry state. Registration happens at startup and
	// the registry is read-only afterwards.
	mu sync.RWMutex

	// plugins maps plugin id to instance.
	plugins map[string]Plugin

	// order keeps registration order for listing.
	order []string
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Register adds a plugin under its descriptor name.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return InvalidInputError("nil plugin")
	}
	d := p.Descriptor()
	if d.Name == "" {
		return InvalidInputError("plugin descriptor has no name")
	}
	if err := d.Kind.Validate(); err != nil {
		return InvalidInputError(err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[d.Name]; exists {
		return NewSystemError(SourceCore, ErrCodePluginRegistered,
			"plugin "+d.Name+" already registered")
	}
	r.plugins[d.Name] = p
	r.order = append(r.order, d.Name)
	return nil
}

// MustRegister registers plugins and panics on failure.
func (r *Registry) MustRegister(plugins ...Plugin) {
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
}

// Get returns the plugin registered under id.
func (r *Registry) Get(id string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[id]
	if !ok {
		return nil, PluginNotFoundError(id)
	}
	return p, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plugins[id]
	return ok
}

// List returns all plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plugins[id])
	}
	return out
}

// ByKind returns the plugins of the given kind sorted by name.
func (r *Registry) ByKind(kind Kind) []Plugin {
	var out []Plugin
	for _, p := range r.List() {
		if p.Descriptor().Kind == kind {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor().Name < out[j].Descriptor().Name
	})
	return out
}

// Lookup resolves ids to plugins, failing on the first unknown id.
func (r *Registry) Lookup(ids []string) ([]Plugin, error) {
	out := make([]Plugin, 0, len(ids))
	for _, id := range ids {
		p, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

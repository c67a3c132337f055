package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// TemplateKind is the infrastructure template format.
type TemplateKind string

// TemplateKindBicep is the only format produced by built-in plugins.
const TemplateKindBicep TemplateKind = "bicep"

// TemplateSection is one section (provision or configuration) of a fragment.
type TemplateSection struct {
	// Orchestration is the body snippet placed in the main template.
	Orchestration string `json:"orchestration,omitempty"`

	// Reference maps output names to template expressions.
	Reference map[string]string `json:"reference,omitempty"`

	// Modules maps module names to module file contents.
	Modules map[string]string `json:"modules,omitempty"`
}

// ResourceTemplate is a plugin's template fragment.
type ResourceTemplate struct {
	Kind          TemplateKind           `json:"kind"`
	Provision     *TemplateSection       `json:"provision,omitempty"`
	Configuration *TemplateSection       `json:"configuration,omitempty"`
	Parameters    map[string]interface{} `json:"parameters,omitempty"`
}

// TemplateFragment is a fragment tagged with its owning plugin.
type TemplateFragment struct {
	Plugin   string            `json:"plugin"`
	Template *ResourceTemplate `json:"template"`
}

// CompositeTemplate is the merge of all active plugins' fragments.
type CompositeTemplate struct {
	Kind TemplateKind `json:"kind"`

	// Parameters are the merged template parameters.
	Parameters map[string]interface{} `json:"parameters"`

	// Modules are the merged provision modules.
	Modules map[string]string `json:"modules"`

	// ConfigurationModules are the merged configuration modules.
	ConfigurationModules map[string]string `json:"configurationModules,omitempty"`

	// Outputs are the merged provision references.
	Outputs map[string]string `json:"outputs"`

	// Fragments are kept in activation order.
	Fragments []TemplateFragment `json:"fragments"`
}

// Plugins returns the owners of the fragments in order.
func (c *CompositeTemplate) Plugins() []string {
	out := make([]string, 0, len(c.Fragments))
	for _, f := range c.Fragments {
		out = append(out, f.Plugin)
	}
	return out
}

// ProvisionOrchestration concatenates provision bodies in fragment order.
func (c *CompositeTemplate) ProvisionOrchestration() string {
	return c.orchestration(func(t *ResourceTemplate) *TemplateSection { return t.Provision })
}

// ConfigurationOrchestration concatenates configuration bodies in fragment order.
func (c *CompositeTemplate) ConfigurationOrchestration() string {
	return c.orchestration(func(t *ResourceTemplate) *TemplateSection { return t.Configuration })
}

func (c *CompositeTemplate) orchestration(section func(*ResourceTemplate) *TemplateSection) string {
	var parts []string
	for _, f := range c.Fragments {
		if f.Template == nil {
			continue
		}
		if s := section(f.Template); s != nil && s.Orchestration != "" {
			parts = append(parts, strings.TrimRight(s.Orchestration, "\n"))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// ParameterNames returns the merged parameter names sorted.
func (c *CompositeTemplate) ParameterNames() []string {
	names := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// MergeFragments merges fragments into a composite template. A name
// contributed by two different plugins to the same mapping is a
// TemplateConflictError.
func MergeFragments(fragments []TemplateFragment) (*CompositeTemplate, error) {
	c := &CompositeTemplate{
		Kind:                 TemplateKindBicep,
		Parameters:           make(map[string]interface{}),
		Modules:              make(map[string]string),
		ConfigurationModules: make(map[string]string),
		Outputs:              make(map[string]string),
	}
	owners := map[string]map[string]string{
		"parameter":            {},
		"module":               {},
		"configuration module": {},
		"output":               {},
	}
	claim := func(section, name, plugin string) error {
		if prev, ok := owners[section][name]; ok && prev != plugin {
			return TemplateConflictError(section, name, prev, plugin)
		}
		owners[section][name] = plugin
		return nil
	}

	kind := TemplateKind("")
	for _, f := range fragments {
		t := f.Template
		if t == nil {
			continue
		}
		if t.Kind != "" {
			if kind != "" && t.Kind != kind {
				return nil, NewSystemError(SourceCore, ErrCodeTemplateKindMismatch,
					fmt.Sprintf("plugin %s produced a %s template, expected %s", f.Plugin, t.Kind, kind))
			}
			kind = t.Kind
		}
		for _, name := range sortedKeys(t.Parameters) {
			if err := claim("parameter", name, f.Plugin); err != nil {
				return nil, err
			}
			c.Parameters[name] = t.Parameters[name]
		}
		if p := t.Provision; p != nil {
			for _, name := range sortedKeys(p.Modules) {
				if err := claim("module", name, f.Plugin); err != nil {
					return nil, err
				}
				c.Modules[name] = p.Modules[name]
			}
			for _, name := range sortedKeys(p.Reference) {
				if err := claim("output", name, f.Plugin); err != nil {
					return nil, err
				}
				c.Outputs[name] = p.Reference[name]
			}
		}
		if cfg := t.Configuration; cfg != nil {
			for _, name := range sortedKeys(cfg.Modules) {
				if err := claim("configuration module", name, f.Plugin); err != nil {
					return nil, err
				}
				c.ConfigurationModules[name] = cfg.Modules[name]
			}
		}
		c.Fragments = append(c.Fragments, f)
	}
	if kind != "" {
		c.Kind = kind
	}
	return c, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TemplateAggregator collects fragments from plugins and merges them.
type TemplateAggregator struct {
	registry *Registry
	invoker  invoker
}

// NewTemplateAggregator creates an aggregator over the registry.
func NewTemplateAggregator(registry *Registry, hooks ...StageHook) *TemplateAggregator {
	return &TemplateAggregator{
		registry: registry,
		invoker:  invoker{hooks: hooks},
	}
}

// Generate builds the composite template of the active plugins. Plugins in
// added get GenerateResourceTemplate; the others get UpdateResourceTemplate
// when they implement it. Plugins without a template operation are skipped.
func (a *TemplateAggregator) Generate(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs, active, added []string) (*CompositeTemplate, error) {
	isAdded := newOrderedSet(added...)
	var fragments []TemplateFragment
	for _, id := range active {
		t, err := a.fragment(ctx, cwm, inputs, id, !isAdded.Has(id))
		if err != nil {
			return nil, err
		}
		if t != nil {
			fragments = append(fragments, TemplateFragment{Plugin: id, Template: t})
		}
	}
	return MergeFragments(fragments)
}

// Update re-generates the fragments of plugins inside previous. Untouched
// fragments keep their position, plugins new to the template are appended.
func (a *TemplateAggregator) Update(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs, previous *CompositeTemplate, plugins []string) (*CompositeTemplate, error) {
	var fragments []TemplateFragment
	if previous != nil {
		fragments = append(fragments, previous.Fragments...)
	}
	for _, id := range plugins {
		t, err := a.fragment(ctx, cwm, inputs, id, true)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		replaced := false
		for i := range fragments {
			if fragments[i].Plugin == id {
				fragments[i] = TemplateFragment{Plugin: id, Template: t}
				replaced = true
				break
			}
		}
		if !replaced {
			fragments = append(fragments, TemplateFragment{Plugin: id, Template: t})
		}
	}
	return MergeFragments(fragments)
}

// fragment asks one plugin for its template. existing selects the update
// operation when the plugin provides one.
func (a *TemplateAggregator) fragment(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs, id string, existing bool) (*ResourceTemplate, error) {
	p, err := a.registry.Get(id)
	if err != nil {
		return nil, err
	}

	var t *ResourceTemplate
	if u, ok := p.(TemplateUpdater); ok && existing {
		err = a.invoker.call(ctx, StageUpdateTemplate, id, func(ctx context.Context) error {
			var callErr error
			t, callErr = u.UpdateResourceTemplate(ctx, cwm, inputs)
			return callErr
		})
		return t, err
	}
	if g, ok := p.(TemplateGenerator); ok {
		err = a.invoker.call(ctx, StageGenerateTemplate, id, func(ctx context.Context) error {
			var callErr error
			t, callErr = g.GenerateResourceTemplate(ctx, cwm, inputs)
			return callErr
		})
		return t, err
	}
	return nil, nil
}

package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
)

// SourceManifest is the error source for manifest provider failures.
const SourceManifest = "manifest"

// Orchestrator sequences lifecycle stages across the active plugin set.
type Orchestrator struct {
	registry   *Registry
	resolver   *DependencyResolver
	aggregator *TemplateAggregator
	manifests  ManifestProvider
	templates  TemplateStore
	policy     TemplatePolicy
	hooks      []StageHook
	invoker    invoker
	logger     zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTemplateStore persists composite templates after add operations.
func WithTemplateStore(store TemplateStore) Option {
	return func(o *Orchestrator) { o.templates = store }
}

// WithTemplatePolicy vets templates before plugin side effects run.
func WithTemplatePolicy(policy TemplatePolicy) Option {
	return func(o *Orchestrator) { o.policy = policy }
}

// WithStageHooks registers hooks observing every plugin call.
func WithStageHooks(hooks ...StageHook) Option {
	return func(o *Orchestrator) { o.hooks = append(o.hooks, hooks...) }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates an orchestrator over the registry.
func NewOrchestrator(registry *Registry, manifests ManifestProvider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		manifests: manifests,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.invoker = invoker{hooks: o.hooks}
	o.resolver = NewDependencyResolver(registry, o.hooks...)
	o.aggregator = NewTemplateAggregator(registry, o.hooks...)
	return o
}

// Registry returns the plugin registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// AddResource adds inputs.Resource and its dependency closure to the project,
// optionally binding it as hosting plugin of inputs.Module.
//
// The caller's ProjectSettings is left untouched when dependency resolution
// fails. After that it is mutated in place, so a later plugin failure keeps
// the changes of the plugins that already succeeded. Nothing is rolled back.
func (o *Orchestrator) AddResource(ctx context.Context, pctx *Context, inputs *Inputs) (err error) {
	ctx, op := operationFor(ctx, string(StageAddResource))
	defer func() {
		if err != nil {
			op.Fail(err)
		}
	}()

	if inputs.Resource == "" {
		return InvalidInputError("resource is required")
	}
	return o.add(ctx, op, pctx, inputs, inputs.Resource, KindResource)
}

// AddFeature adds inputs.Feature and its dependency closure to the project.
func (o *Orchestrator) AddFeature(ctx context.Context, pctx *Context, inputs *Inputs) (err error) {
	ctx, op := operationFor(ctx, string(StageAddFeature))
	defer func() {
		if err != nil {
			op.Fail(err)
		}
	}()

	if inputs.Feature == "" {
		return InvalidInputError("feature is required")
	}
	return o.add(ctx, op, pctx, inputs, inputs.Feature, KindFeature)
}

func (o *Orchestrator) add(ctx context.Context, op *Operation, pctx *Context, inputs *Inputs, requested string, kind Kind) (err error) {
	if pctx == nil || pctx.ProjectSettings == nil {
		return InvalidInputError("project settings are not loaded")
	}
	p, err := o.registry.Get(requested)
	if err != nil {
		return err
	}
	if got := p.Descriptor().Kind; got != kind {
		return InvalidInputError(fmt.Sprintf("plugin %s is a %s plugin, not a %s plugin", requested, got, kind))
	}

	log := o.logger.With().Str("operation", op.Name).Str("operation_id", op.ID).Str("plugin", requested).Logger()

	sol := &pctx.ProjectSettings.Solution
	var module *Module
	if inputs.Module != nil {
		m, ok := sol.Module(*inputs.Module)
		if !ok {
			return InvalidInputError(fmt.Sprintf("module %d does not exist", *inputs.Module))
		}
		if kind == KindResource && m.HostingPlugin == requested {
			return ResourceAlreadyAddedError(requested, *inputs.Module)
		}
		if kind == KindFeature && slices.Contains(m.Capabilities, requested) {
			return ResourceAlreadyAddedError(requested, *inputs.Module)
		}
		module = m
	}

	existing := slices.Clone(sol.ActiveResourcePlugins)

	added, err := o.resolver.Resolve(ctx, pctx, inputs, []string{requested})
	if err != nil {
		return err
	}
	if err := op.Transition(OperationDependencyResolved); err != nil {
		return err
	}
	log.Debug().Strs("resolved", added).Msg("dependencies resolved")

	// Until the first plugin add runs, a failure restores the binding.
	invoked := false
	if module != nil {
		prev := *module
		prev.Capabilities = slices.Clone(module.Capabilities)
		defer func() {
			if err != nil && !invoked {
				*module = prev
			}
		}()
		if kind == KindResource {
			module.HostingPlugin = requested
		} else {
			module.Capabilities = append(module.Capabilities, requested)
		}
	}
	defer func() {
		if err != nil && !invoked {
			sol.ActiveResourcePlugins = existing
		}
	}()
	active := newOrderedSet(existing...)
	var newlyAdded []string
	for _, id := range added {
		if active.Add(id) {
			newlyAdded = append(newlyAdded, id)
		}
	}
	sol.ActiveResourcePlugins = active.Items()

	manifest, err := o.manifests.LoadManifest(ctx, pctx, inputs)
	if err != nil {
		return ClassifyPluginError(SourceManifest, err)
	}
	cwm := &ContextWithManifest{Context: pctx, Manifest: manifest}

	addInputs := inputs.Clone()
	addInputs.ExistingResources = existing

	tpl, err := o.aggregator.Generate(ctx, cwm, addInputs, sol.ActiveResourcePlugins, added)
	if err != nil {
		return err
	}
	if err := op.Transition(OperationTemplateGenerated); err != nil {
		return err
	}
	if o.policy != nil {
		if err := o.policy.EvaluateTemplate(ctx, pctx.ProjectSettings, tpl); err != nil {
			return err
		}
	}

	var capabilities []CapabilityDescriptor
	for _, id := range newlyAdded {
		p, err := o.registry.Get(id)
		if err != nil {
			return err
		}
		invoked = true
		t, err := o.invokeAdd(ctx, cwm, addInputs, id, p)
		if err != nil {
			log.Error().Err(err).Str("failed_plugin", id).Msg("add failed")
			return err
		}
		if t != nil {
			if tpl, err = replaceFragment(tpl, id, t); err != nil {
				return err
			}
		}
		if cp, ok := p.(CapabilityContributor); ok {
			capabilities = append(capabilities, cp.ManifestCapabilities(addInputs)...)
		}
	}

	if kind == KindFeature {
		for _, id := range existing {
			p, err := o.registry.Get(id)
			if err != nil {
				return err
			}
			h, ok := p.(OtherFeaturesAddedHandler)
			if !ok || p.Descriptor().Kind != KindFeature {
				continue
			}
			var t *ResourceTemplate
			err = o.invoker.call(ctx, StageAfterFeatureAdded, id, func(ctx context.Context) error {
				var callErr error
				t, callErr = h.AfterOtherFeaturesAdded(ctx, cwm, addInputs, newlyAdded)
				return callErr
			})
			if err != nil {
				return err
			}
			if t != nil {
				if tpl, err = replaceFragment(tpl, id, t); err != nil {
					return err
				}
			}
		}
	}
	if err := op.Transition(OperationPluginsInvoked); err != nil {
		return err
	}

	if o.templates != nil {
		if err := o.templates.SaveTemplate(ctx, inputs.ProjectPath, tpl); err != nil {
			return ClassifyPluginError(SourceCore, err)
		}
	}
	if err := o.manifests.SaveManifest(ctx, pctx, inputs, cwm.Manifest); err != nil {
		return ClassifyPluginError(SourceManifest, err)
	}
	if len(capabilities) > 0 {
		if err := o.manifests.AddCapabilities(ctx, pctx, inputs, capabilities); err != nil {
			return ClassifyPluginError(SourceManifest, err)
		}
	}
	if err := op.Transition(OperationManifestPersisted); err != nil {
		return err
	}

	log.Info().Strs("added", newlyAdded).Msg("plugins added")
	return op.Transition(OperationDone)
}

// CapabilityContributor is implemented by plugins that add manifest
// capabilities when they are added to a project.
type CapabilityContributor interface {
	ManifestCapabilities(inputs *Inputs) []CapabilityDescriptor
}

// invokeAdd calls the add operation matching the plugin's own kind.
func (o *Orchestrator) invokeAdd(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs, id string, p Plugin) (*ResourceTemplate, error) {
	var t *ResourceTemplate
	switch p.Descriptor().Kind {
	case KindResource:
		a, ok := p.(ResourceAdder)
		if !ok {
			return nil, nil
		}
		err := o.invoker.call(ctx, StageAddResource, id, func(ctx context.Context) error {
			var callErr error
			t, callErr = a.AddResource(ctx, cwm, inputs)
			return callErr
		})
		return t, err
	case KindFeature:
		a, ok := p.(FeatureAdder)
		if !ok {
			return nil, nil
		}
		err := o.invoker.call(ctx, StageAddFeature, id, func(ctx context.Context) error {
			var callErr error
			t, callErr = a.AddFeature(ctx, cwm, inputs)
			return callErr
		})
		return t, err
	}
	return nil, nil
}

// replaceFragment swaps the fragment of plugin and re-merges.
func replaceFragment(tpl *CompositeTemplate, plugin string, t *ResourceTemplate) (*CompositeTemplate, error) {
	fragments := slices.Clone(tpl.Fragments)
	replaced := false
	for i := range fragments {
		if fragments[i].Plugin == plugin {
			fragments[i].Template = t
			replaced = true
		}
	}
	if !replaced {
		fragments = append(fragments, TemplateFragment{Plugin: plugin, Template: t})
	}
	return MergeFragments(fragments)
}

// GenerateTemplates regenerates the composite template of all active plugins.
func (o *Orchestrator) GenerateTemplates(ctx context.Context, pctx *Context, inputs *Inputs) (tpl *CompositeTemplate, err error) {
	ctx, op := operationFor(ctx, "generateTemplates")
	defer func() {
		if err != nil {
			op.Fail(err)
		}
	}()

	cwm, err := o.withManifest(ctx, pctx, inputs)
	if err != nil {
		return nil, err
	}
	active := pctx.ProjectSettings.Solution.ActiveResourcePlugins
	tpl, err = o.aggregator.Generate(ctx, cwm, inputs, active, active)
	if err != nil {
		return nil, err
	}
	if err := op.Transition(OperationTemplateGenerated); err != nil {
		return nil, err
	}
	if err := o.persistTemplate(ctx, op, inputs, tpl); err != nil {
		return nil, err
	}
	return tpl, op.Transition(OperationDone)
}

// UpdateTemplates replaces the fragments of plugins in the saved template.
// With no plugins given every active plugin is updated.
func (o *Orchestrator) UpdateTemplates(ctx context.Context, pctx *Context, inputs *Inputs, plugins []string) (tpl *CompositeTemplate, err error) {
	ctx, op := operationFor(ctx, "updateTemplates")
	defer func() {
		if err != nil {
			op.Fail(err)
		}
	}()

	cwm, err := o.withManifest(ctx, pctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(plugins) == 0 {
		plugins = pctx.ProjectSettings.Solution.ActiveResourcePlugins
	}
	for _, id := range plugins {
		if !pctx.ProjectSettings.Solution.IsActive(id) {
			return nil, InvalidInputError(fmt.Sprintf("plugin %s is not active", id))
		}
	}

	var previous *CompositeTemplate
	if o.templates != nil {
		previous, err = o.templates.LoadTemplate(ctx, inputs.ProjectPath)
		if err != nil {
			return nil, ClassifyPluginError(SourceCore, err)
		}
	}
	tpl, err = o.aggregator.Update(ctx, cwm, inputs, previous, plugins)
	if err != nil {
		return nil, err
	}
	if err := op.Transition(OperationTemplateGenerated); err != nil {
		return nil, err
	}
	if err := o.persistTemplate(ctx, op, inputs, tpl); err != nil {
		return nil, err
	}
	return tpl, op.Transition(OperationDone)
}

func (o *Orchestrator) persistTemplate(ctx context.Context, op *Operation, inputs *Inputs, tpl *CompositeTemplate) error {
	if o.templates == nil {
		return nil
	}
	if err := o.templates.SaveTemplate(ctx, inputs.ProjectPath, tpl); err != nil {
		return ClassifyPluginError(SourceCore, err)
	}
	return op.Transition(OperationManifestPersisted)
}

func (o *Orchestrator) withManifest(ctx context.Context, pctx *Context, inputs *Inputs) (*ContextWithManifest, error) {
	if pctx == nil || pctx.ProjectSettings == nil {
		return nil, InvalidInputError("project settings are not loaded")
	}
	manifest, err := o.manifests.LoadManifest(ctx, pctx, inputs)
	if err != nil {
		return nil, ClassifyPluginError(SourceManifest, err)
	}
	return &ContextWithManifest{Context: pctx, Manifest: manifest}, nil
}

// Scaffold runs a scaffold plugin for inputs.Module. A nil module index
// appends a new module.
func (o *Orchestrator) Scaffold(ctx context.Context, pctx *Context, inputs *ScaffoldInputs, plugin string) (err error) {
	ctx, op := operationFor(ctx, string(StageScaffold))
	defer func() {
		if err != nil {
			op.Fail(err)
		}
	}()

	p, err := o.registry.Get(plugin)
	if err != nil {
		return err
	}
	s, ok := p.(Scaffolder)
	if !ok {
		return InvalidInputError(fmt.Sprintf("plugin %s cannot scaffold", plugin))
	}
	cwm, err := o.withManifest(ctx, pctx, &inputs.Inputs)
	if err != nil {
		return err
	}
	sol := &pctx.ProjectSettings.Solution
	if inputs.Module == nil {
		sol.Modules = append(sol.Modules, Module{})
		idx := len(sol.Modules) - 1
		inputs.Module = &idx
	} else if _, ok := sol.Module(*inputs.Module); !ok {
		return InvalidInputError(fmt.Sprintf("module %d does not exist", *inputs.Module))
	}

	err = o.invoker.call(ctx, StageScaffold, plugin, func(ctx context.Context) error {
		return s.Scaffold(ctx, cwm, inputs)
	})
	if err != nil {
		return err
	}
	if err := op.Transition(OperationPluginsInvoked); err != nil {
		return err
	}
	if err := o.manifests.SaveManifest(ctx, pctx, &inputs.Inputs, cwm.Manifest); err != nil {
		return ClassifyPluginError(SourceManifest, err)
	}
	if err := op.Transition(OperationManifestPersisted); err != nil {
		return err
	}
	return op.Transition(OperationDone)
}

// ScaffoldTemplates lists the templates offered by every scaffold plugin.
func (o *Orchestrator) ScaffoldTemplates(ctx context.Context, pctx *Context, inputs *Inputs) (map[string][]ScaffoldTemplate, error) {
	out := make(map[string][]ScaffoldTemplate)
	for _, p := range o.registry.ByKind(KindScaffold) {
		s, ok := p.(Scaffolder)
		if !ok {
			continue
		}
		id := p.Descriptor().Name
		var templates []ScaffoldTemplate
		err := o.invoker.call(ctx, StageScaffold, id, func(ctx context.Context) error {
			var callErr error
			templates, callErr = s.GetTemplates(ctx, pctx, inputs)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		out[id] = templates
	}
	return out, nil
}

// QuestionsForAddResource builds the question tree of the add resource flow:
// the module select, the resource select and the selected resource's own
// questions.
func (o *Orchestrator) QuestionsForAddResource(ctx context.Context, pctx *Context, inputs *Inputs) (*QTreeNode, error) {
	if pctx == nil || pctx.ProjectSettings == nil {
		return nil, InvalidInputError("project settings are not loaded")
	}
	root := NewGroupNode()
	root.AddChild(SelectModuleQuestion(pctx.ProjectSettings.Solution.Modules))
	root.AddChild(SelectPluginQuestion(QuestionResource, "Select a resource", o.registry.ByKind(KindResource)))
	if inputs.Resource == "" {
		return root, nil
	}
	node, err := o.pluginQuestions(ctx, StageAddResource, pctx, inputs, inputs.Resource)
	if err != nil {
		return nil, err
	}
	root.AddChild(node)
	return root, nil
}

// QuestionsFor gathers the questions of every active plugin for stage.
func (o *Orchestrator) QuestionsFor(ctx context.Context, stage Stage, pctx *Context, inputs *Inputs) (*QTreeNode, error) {
	if pctx == nil || pctx.ProjectSettings == nil {
		return nil, InvalidInputError("project settings are not loaded")
	}
	root := NewGroupNode()
	for _, id := range pctx.ProjectSettings.Solution.ActiveResourcePlugins {
		node, err := o.pluginQuestions(ctx, stage, pctx, inputs, id)
		if err != nil {
			return nil, err
		}
		root.AddChild(node)
	}
	return root, nil
}

func (o *Orchestrator) pluginQuestions(ctx context.Context, stage Stage, pctx *Context, inputs *Inputs, id string) (*QTreeNode, error) {
	p, err := o.registry.Get(id)
	if err != nil {
		return nil, err
	}
	qp, ok := p.(QuestionProvider)
	if !ok {
		return nil, nil
	}
	var node *QTreeNode
	err = o.invoker.call(ctx, StageQuestions, id, func(ctx context.Context) error {
		var callErr error
		node, callErr = qp.QuestionsFor(ctx, stage, pctx, inputs)
		return callErr
	})
	return node, err
}

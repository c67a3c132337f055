package engine

import (
	"context"
	"sync"
)

// callLog records plugin calls as "plugin:stage".
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(plugin string, stage Stage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, plugin+":"+string(stage))
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

func (l *callLog) count(entry string) int {
	n := 0
	for _, c := range l.list() {
		if c == entry {
			n++
		}
	}
	return n
}

// basePlugin implements no lifecycle stage.
type basePlugin struct {
	name string
	kind Kind
}

func (p *basePlugin) Descriptor() Descriptor {
	kind := p.kind
	if kind == "" {
		kind = KindResource
	}
	return Descriptor{Name: p.name, DisplayName: p.name, Kind: kind, ResourceType: "mock " + p.name}
}

// mockPlugin implements every lifecycle stage.
type mockPlugin struct {
	basePlugin

	log       *callLog
	deps      []string
	template  *ResourceTemplate
	outputs   CloudResource
	errs      map[Stage]error
	panics    map[Stage]bool
	taskValue interface{}
	onAdd     func(cwm *ContextWithManifest)
}

func newMockPlugin(name string, log *callLog) *mockPlugin {
	return &mockPlugin{
		basePlugin: basePlugin{name: name},
		log:        log,
		errs:       make(map[Stage]error),
		panics:     make(map[Stage]bool),
		template: &ResourceTemplate{
			Kind: TemplateKindBicep,
			Provision: &TemplateSection{
				Orchestration: "// " + name,
				Reference:     map[string]string{name + "Endpoint": "provisionOutputs." + name + ".endpoint"},
				Modules:       map[string]string{name: "module " + name},
			},
			Parameters: map[string]interface{}{name + "Sku": "F1"},
		},
	}
}

func (p *mockPlugin) run(stage Stage) error {
	p.log.record(p.name, stage)
	if p.panics[stage] {
		panic("boom")
	}
	return p.errs[stage]
}

func (p *mockPlugin) PluginDependencies(ctx context.Context, pctx *Context, inputs *Inputs) ([]string, error) {
	if err := p.run(StageDependencies); err != nil {
		return nil, err
	}
	return p.deps, nil
}

func (p *mockPlugin) GenerateResourceTemplate(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs) (*ResourceTemplate, error) {
	if err := p.run(StageGenerateTemplate); err != nil {
		return nil, err
	}
	return p.template, nil
}

func (p *mockPlugin) AddResource(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs) (*ResourceTemplate, error) {
	if err := p.run(StageAddResource); err != nil {
		return nil, err
	}
	if p.onAdd != nil {
		p.onAdd(cwm)
	}
	return nil, nil
}

func (p *mockPlugin) AddFeature(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs) (*ResourceTemplate, error) {
	return nil, p.run(StageAddFeature)
}

func (p *mockPlugin) AfterOtherFeaturesAdded(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs, features []string) (*ResourceTemplate, error) {
	return nil, p.run(StageAfterFeatureAdded)
}

func (p *mockPlugin) PreProvision(ctx context.Context, pctx *Context, inputs *Inputs, env *EnvInfo, tokens TokenProvider) error {
	return p.run(StagePreProvision)
}

func (p *mockPlugin) ProvisionResource(ctx context.Context, pctx *Context, inputs *Inputs, env *EnvInfo, tokens TokenProvider) (CloudResource, error) {
	if err := p.run(StageProvision); err != nil {
		return nil, err
	}
	return p.outputs, nil
}

func (p *mockPlugin) ConfigureResource(ctx context.Context, pctx *Context, inputs *Inputs, env *EnvInfo, tokens TokenProvider) (CloudResource, error) {
	return nil, p.run(StageConfigure)
}

func (p *mockPlugin) PreDeploy(ctx context.Context, pctx *Context, inputs *DeployInputs, env *EnvInfo, tokens TokenProvider) error {
	return p.run(StagePreDeploy)
}

func (p *mockPlugin) Deploy(ctx context.Context, pctx *Context, inputs *DeployInputs, env *EnvInfo, tokens TokenProvider) error {
	return p.run(StageDeploy)
}

func (p *mockPlugin) ProvisionLocalResource(ctx context.Context, pctx *Context, inputs *Inputs, local LocalSettings, tokens TokenProvider) (CloudResource, error) {
	if err := p.run(StageLocalProvision); err != nil {
		return nil, err
	}
	return p.outputs, nil
}

func (p *mockPlugin) ConfigureLocalResource(ctx context.Context, pctx *Context, inputs *Inputs, local LocalSettings, tokens TokenProvider) error {
	return p.run(StageLocalConfigure)
}

func (p *mockPlugin) ExecuteUserTask(ctx context.Context, pctx *Context, inputs *Inputs, fn Func, local LocalSettings, env *EnvInfo, tokens TokenProvider) (interface{}, error) {
	if err := p.run(StageUserTask); err != nil {
		return nil, err
	}
	return p.taskValue, nil
}

// updatingPlugin adds UpdateResourceTemplate on top of mockPlugin.
type updatingPlugin struct {
	*mockPlugin
	updated *ResourceTemplate
}

func (p *updatingPlugin) UpdateResourceTemplate(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs) (*ResourceTemplate, error) {
	if err := p.run(StageUpdateTemplate); err != nil {
		return nil, err
	}
	return p.updated, nil
}

// memManifests is an in-memory ManifestProvider.
type memManifests struct {
	manifest     *AppManifest
	loads, saves int
	capabilities []CapabilityDescriptor
	loadErr      error
}

func (m *memManifests) LoadManifest(ctx context.Context, pctx *Context, inputs *Inputs) (*AppManifest, error) {
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.manifest == nil {
		m.manifest = &AppManifest{ManifestVersion: "1.11", Version: "1.0.0"}
	}
	c := *m.manifest
	return &c, nil
}

func (m *memManifests) SaveManifest(ctx context.Context, pctx *Context, inputs *Inputs, manifest *AppManifest) error {
	m.saves++
	c := *manifest
	m.manifest = &c
	return nil
}

func (m *memManifests) AddCapabilities(ctx context.Context, pctx *Context, inputs *Inputs, capabilities []CapabilityDescriptor) error {
	m.capabilities = append(m.capabilities, capabilities...)
	return nil
}

// memTemplates is an in-memory TemplateStore.
type memTemplates struct {
	saved *CompositeTemplate
	saves int
}

func (m *memTemplates) SaveTemplate(ctx context.Context, projectPath string, tpl *CompositeTemplate) error {
	m.saves++
	m.saved = tpl
	return nil
}

func (m *memTemplates) LoadTemplate(ctx context.Context, projectPath string) (*CompositeTemplate, error) {
	return m.saved, nil
}

func newTestContext(modules int, active ...string) *Context {
	settings := &ProjectSettings{
		AppName:   "app",
		ProjectID: "00000000-0000-0000-0000-000000000001",
		Solution: SolutionSettings{
			Name:                  SolutionNamespace,
			Modules:               make([]Module, modules),
			ActiveResourcePlugins: active,
		},
	}
	return &Context{ProjectSettings: settings}
}

func intPtr(i int) *int { return &i }

func newTestInputs() *Inputs {
	return &Inputs{Platform: PlatformCLI, ProjectPath: "/tmp/project", EnvName: "dev"}
}

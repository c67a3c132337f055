package core

import (
	"context"
	"sync"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// recorder counts plugin calls as "plugin:stage".
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(plugin string, stage engine.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, plugin+":"+string(stage))
}

func (r *recorder) count(plugin string, stage engine.Stage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == plugin+":"+string(stage) {
			n++
		}
	}
	return n
}

type testPlugin struct {
	name         string
	deps         []string
	outputs      engine.CloudResource
	local        engine.CloudResource
	provisionErr error
	rec          *recorder
}

func (p *testPlugin) Descriptor() engine.Descriptor {
	return engine.Descriptor{Name: p.name, DisplayName: p.name, Kind: engine.KindResource, ResourceType: "test " + p.name}
}

func (p *testPlugin) PluginDependencies(context.Context, *engine.Context, *engine.Inputs) ([]string, error) {
	return p.deps, nil
}

func (p *testPlugin) GenerateResourceTemplate(context.Context, *engine.ContextWithManifest, *engine.Inputs) (*engine.ResourceTemplate, error) {
	p.rec.add(p.name, engine.StageGenerateTemplate)
	return &engine.ResourceTemplate{
		Kind: engine.TemplateKindBicep,
		Provision: &engine.TemplateSection{
			Orchestration: "module " + p.name + "Provision './provision/" + p.name + ".bicep' = {}",
			Modules:       map[string]string{p.name: "param location string"},
			Reference:     map[string]string{p.name + "Endpoint": p.name + "Provision.outputs.endpoint"},
		},
		Parameters: map[string]interface{}{p.name + "Sku": "F1"},
	}, nil
}

func (p *testPlugin) AddResource(context.Context, *engine.ContextWithManifest, *engine.Inputs) (*engine.ResourceTemplate, error) {
	p.rec.add(p.name, engine.StageAddResource)
	return nil, nil
}

func (p *testPlugin) ProvisionResource(context.Context, *engine.Context, *engine.Inputs, *engine.EnvInfo, engine.TokenProvider) (engine.CloudResource, error) {
	p.rec.add(p.name, engine.StageProvision)
	if p.provisionErr != nil {
		return nil, p.provisionErr
	}
	return p.outputs, nil
}

func (p *testPlugin) ProvisionLocalResource(context.Context, *engine.Context, *engine.Inputs, engine.LocalSettings, engine.TokenProvider) (engine.CloudResource, error) {
	p.rec.add(p.name, engine.StageLocalProvision)
	return p.local, nil
}

package engine

import (
	"context"
)

// ManifestProvider loads and saves the application manifest.
type ManifestProvider interface {
	// LoadManifest reads the current manifest of the project.
	LoadManifest(ctx context.Context, pctx *Context, inputs *Inputs) (*AppManifest, error)

	// SaveManifest persists the manifest.
	SaveManifest(ctx context.Context, pctx *Context, inputs *Inputs, manifest *AppManifest) error

	// AddCapabilities adds capability entries to the persisted manifest.
	AddCapabilities(ctx context.Context, pctx *Context, inputs *Inputs, capabilities []CapabilityDescriptor) error
}

// TemplateStore persists the composite infrastructure template.
type TemplateStore interface {
	// SaveTemplate writes the template files of a project.
	SaveTemplate(ctx context.Context, projectPath string, tpl *CompositeTemplate) error

	// LoadTemplate reads a previously saved template. A project without a
	// template yields (nil, nil).
	LoadTemplate(ctx context.Context, projectPath string) (*CompositeTemplate, error)
}

// TemplatePolicy vets a composite template before plugins apply side effects.
type TemplatePolicy interface {
	EvaluateTemplate(ctx context.Context, settings *ProjectSettings, tpl *CompositeTemplate) error
}

// StageHook observes every plugin call made by the engine.
type StageHook interface {
	// BeforeStage is called before the plugin runs. The returned context is
	// passed to the plugin.
	BeforeStage(ctx context.Context, stage Stage, plugin string) context.Context

	// AfterStage is called with the classified error of the call.
	AfterStage(ctx context.Context, stage Stage, plugin string, err error)
}

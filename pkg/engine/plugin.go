package engine

import (
	"context"
	"fmt"
)

// Kind is the capability class of a plugin.
type Kind string

const (
	KindResource Kind = "resource"
	KindFeature  Kind = "feature"
	KindScaffold Kind = "scaffold"
)

// Validate checks if the plugin kind is valid.
func (k Kind) Validate() error {
	switch k {
	case KindResource, KindFeature, KindScaffold:
		return nil
	default:
		return fmt.Errorf("invalid plugin kind: %s", k)
	}
}

// Descriptor identifies a plugin. It never changes after registration.
type Descriptor struct {
	// Name is the unique plugin id, e.g. "fx-resource-bot".
	Name string `json:"name" validate:"required"`

	// DisplayName is the human-readable name.
	DisplayName string `json:"displayName"`

	Description string `json:"description,omitempty"`

	Kind Kind `json:"kind" validate:"required"`

	// ResourceType is the cloud resource type offered by resource plugins.
	ResourceType string `json:"resourceType,omitempty"`
}

// Plugin is the base contract every plugin implements. All lifecycle
// stages are optional: a plugin opts into a stage by implementing the
// matching interface below, and the engine skips it otherwise.
type Plugin interface {
	Descriptor() Descriptor
}

// TokenProvider supplies cloud credentials to provisioning and deploy stages.
type TokenProvider interface {
	// AccessToken returns a bearer token for the given scope.
	AccessToken(ctx context.Context, scope string) (string, error)

	// SubscriptionID returns the selected cloud subscription.
	SubscriptionID(ctx context.Context) (string, error)
}

// DependencyProvider declares the plugins a plugin requires. The answer may
// depend on the current context and is queried again on every resolution pass.
type DependencyProvider interface {
	PluginDependencies(ctx context.Context, pctx *Context, inputs *Inputs) ([]string, error)
}

// QuestionProvider contributes plugin-specific questions for a stage.
// A nil node means the plugin has nothing to ask.
type QuestionProvider interface {
	QuestionsFor(ctx context.Context, stage Stage, pctx *Context, inputs *Inputs) (*QTreeNode, error)
}

// ResourceAdder is implemented by resource plugins with add-time side effects.
type ResourceAdder interface {
	AddResource(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs) (*ResourceTemplate, error)
}

// FeatureAdder is implemented by feature plugins.
type FeatureAdder interface {
	AddFeature(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs) (*ResourceTemplate, error)
}

// OtherFeaturesAddedHandler is notified after other feature plugins were added.
type OtherFeaturesAddedHandler interface {
	AfterOtherFeaturesAdded(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs, features []string) (*ResourceTemplate, error)
}

// TemplateGenerator produces the plugin's template fragment.
type TemplateGenerator interface {
	GenerateResourceTemplate(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs) (*ResourceTemplate, error)
}

// TemplateUpdater refreshes the fragment of an already active plugin.
type TemplateUpdater interface {
	UpdateResourceTemplate(ctx context.Context, cwm *ContextWithManifest, inputs *Inputs) (*ResourceTemplate, error)
}

// PreProvisioner runs before any plugin provisions resources.
type PreProvisioner interface {
	PreProvision(ctx context.Context, pctx *Context, inputs *Inputs, env *EnvInfo, tokens TokenProvider) error
}

// ResourceProvisioner provisions cloud resources. The returned outputs are
// merged into the plugin's environment state.
type ResourceProvisioner interface {
	ProvisionResource(ctx context.Context, pctx *Context, inputs *Inputs, env *EnvInfo, tokens TokenProvider) (CloudResource, error)
}

// ResourceConfigurer runs after all plugins provisioned.
type ResourceConfigurer interface {
	ConfigureResource(ctx context.Context, pctx *Context, inputs *Inputs, env *EnvInfo, tokens TokenProvider) (CloudResource, error)
}

// PreDeployer prepares deployment artifacts.
type PreDeployer interface {
	PreDeploy(ctx context.Context, pctx *Context, inputs *DeployInputs, env *EnvInfo, tokens TokenProvider) error
}

// Deployer deploys a module.
type Deployer interface {
	Deploy(ctx context.Context, pctx *Context, inputs *DeployInputs, env *EnvInfo, tokens TokenProvider) error
}

// LocalProvisioner sets up resources for local debugging.
type LocalProvisioner interface {
	ProvisionLocalResource(ctx context.Context, pctx *Context, inputs *Inputs, local LocalSettings, tokens TokenProvider) (CloudResource, error)
}

// LocalConfigurer configures resources for local debugging.
type LocalConfigurer interface {
	ConfigureLocalResource(ctx context.Context, pctx *Context, inputs *Inputs, local LocalSettings, tokens TokenProvider) error
}

// UserTaskExecutor runs a named user task.
type UserTaskExecutor interface {
	ExecuteUserTask(ctx context.Context, pctx *Context, inputs *Inputs, fn Func, local LocalSettings, env *EnvInfo, tokens TokenProvider) (interface{}, error)
}

// ScaffoldTemplate describes a project template offered by a scaffold plugin.
type ScaffoldTemplate struct {
	Name        string   `json:"name"`
	Language    string   `json:"language"`
	Description string   `json:"description,omitempty"`
	Modules     []Module `json:"modules,omitempty"`
}

// Scaffolder generates source code for a new module.
type Scaffolder interface {
	GetTemplates(ctx context.Context, pctx *Context, inputs *Inputs) ([]ScaffoldTemplate, error)
	Scaffold(ctx context.Context, cwm *ContextWithManifest, inputs *ScaffoldInputs) error
}

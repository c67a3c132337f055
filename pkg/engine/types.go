package engine

import (
	"encoding/json"
	"slices"
	"strconv"

	"github.com/rs/zerolog"
)

// ProjectSettings is the persisted description of a project.
type ProjectSettings struct {
	// AppName is the application name shown in the app manifest.
	AppName string `json:"appName" validate:"required"`

	// ProjectID uniquely identifies the project.
	ProjectID string `json:"projectId" validate:"required"`

	// Version is the project settings schema version.
	Version string `json:"version,omitempty"`

	// ProgrammingLanguage is the language used by generated code.
	ProgrammingLanguage string `json:"programmingLanguage,omitempty" validate:"omitempty,oneof=javascript typescript csharp"`

	// Solution holds the composed plugin set and modules.
	Solution SolutionSettings `json:"solutionSettings"`
}

// SolutionSettings holds the solution-level state of a project.
type SolutionSettings struct {
	Name           string   `json:"name"`
	Version        string   `json:"version,omitempty"`
	Capabilities   []string `json:"capabilities,omitempty"`
	HostType       string   `json:"hostType,omitempty"`
	AzureResources []string `json:"azureResources,omitempty"`

	// Modules are the deployable units of the project.
	Modules []Module `json:"modules" validate:"dive"`

	// ActiveResourcePlugins is an ordered set of plugin ids, in activation order.
	ActiveResourcePlugins []string `json:"activeResourcePlugins"`
}

// Module is a deployable unit of a project.
type Module struct {
	Capabilities []string `json:"capabilities,omitempty"`

	// HostingPlugin is the resource plugin that hosts this module.
	HostingPlugin string `json:"hostingPlugin,omitempty"`

	Dir        string `json:"dir,omitempty"`
	BuildPath  string `json:"buildPath,omitempty"`
	DeployType string `json:"deployType,omitempty" validate:"omitempty,oneof=folder zip"`
}

// Module returns the module at index i.
func (s *SolutionSettings) Module(i int) (*Module, bool) {
	if i < 0 || i >= len(s.Modules) {
		return nil, false
	}
	return &s.Modules[i], true
}

// IsActive reports whether the plugin is part of the solution.
func (s *SolutionSettings) IsActive(plugin string) bool {
	return slices.Contains(s.ActiveResourcePlugins, plugin)
}

// EnvState maps a plugin id to that plugin's persisted outputs.
type EnvState map[string]map[string]interface{}

// Clone returns a copy of the state with independent per-plugin maps.
func (s EnvState) Clone() EnvState {
	if s == nil {
		return nil
	}
	c := make(EnvState, len(s))
	for k, v := range s {
		inner := make(map[string]interface{}, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		c[k] = inner
	}
	return c
}

// Merge copies the resource outputs into the plugin's entry.
func (s EnvState) Merge(plugin string, res CloudResource) {
	if len(res) == 0 {
		return
	}
	entry, ok := s[plugin]
	if !ok {
		entry = make(map[string]interface{}, len(res))
		s[plugin] = entry
	}
	for k, v := range res {
		entry[k] = v
	}
}

// EnvInfo is the per-environment configuration and state.
type EnvInfo struct {
	// EnvName is the environment name, e.g. "dev" or "local".
	EnvName string `json:"envName"`

	// Config is the environment configuration read from config.<env>.json.
	Config map[string]interface{} `json:"config,omitempty"`

	// State holds each plugin's provisioned outputs.
	State EnvState `json:"state"`
}

// CloudResource is the output of a provisioning stage. The optional
// "secretFields" key lists the fields stored outside the state file.
type CloudResource map[string]interface{}

// SecretFieldsKey lists secret keys inside a CloudResource.
const SecretFieldsKey = "secretFields"

// LocalSettings is the local debug state keyed by plugin id.
type LocalSettings map[string]map[string]interface{}

// Platform identifies the host driving an operation.
type Platform string

const (
	PlatformCLI     Platform = "cli"
	PlatformVSCode  Platform = "vsc"
	PlatformVS      Platform = "vs"
	PlatformCLIHelp Platform = "cli_help"
)

// IsStatic reports whether the platform only renders help and never persists.
func (p Platform) IsStatic() bool {
	return p == PlatformVS || p == PlatformCLIHelp
}

// LocalEnvName is the environment reserved for local debugging.
const LocalEnvName = "local"

// LocalDebugPlugin is the plugin whose state only belongs in the local environment.
const LocalDebugPlugin = "fx-resource-local-debug"

// SolutionNamespace is the user task namespace handled by the engine itself.
const SolutionNamespace = "fx-solution-azure"

// Inputs is the per-invocation input bag.
type Inputs struct {
	Platform    Platform `json:"platform" validate:"required"`
	ProjectPath string   `json:"projectPath"`
	EnvName     string   `json:"env,omitempty"`

	// Module is the target module index for add operations.
	Module *int `json:"module,omitempty"`

	// Resource is the resource plugin requested by addResource.
	Resource string `json:"resource,omitempty"`

	// Feature is the feature plugin requested by addFeature.
	Feature string `json:"feature,omitempty"`

	// Modules restricts deploy to the given module indices.
	Modules []int `json:"modules,omitempty"`

	// ExistingResources is the active plugin set before an add operation.
	ExistingResources []string `json:"existingResources,omitempty"`

	IgnoreEnvInfo       bool `json:"ignoreEnvInfo,omitempty"`
	IgnoreConfigPersist bool `json:"ignoreConfigPersist,omitempty"`

	// Answers holds question answers keyed by question name.
	Answers map[string]interface{} `json:"answers,omitempty"`

	CorrelationID string `json:"correlationId,omitempty"`
}

// ModuleIndex parses a module index answer. "none" and empty yield false.
func ModuleIndex(answer string) (int, bool) {
	if answer == "" || answer == ModuleNone {
		return 0, false
	}
	i, err := strconv.Atoi(answer)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// Clone returns a shallow copy of the inputs with an independent answer map.
func (in *Inputs) Clone() *Inputs {
	c := *in
	c.ExistingResources = slices.Clone(in.ExistingResources)
	c.Modules = slices.Clone(in.Modules)
	if in.Answers != nil {
		c.Answers = make(map[string]interface{}, len(in.Answers))
		for k, v := range in.Answers {
			c.Answers[k] = v
		}
	}
	return &c
}

// DeployInputs are the inputs of the deploy stages for one module.
type DeployInputs struct {
	Inputs

	Dir        string `json:"dir,omitempty"`
	BuildPath  string `json:"buildPath,omitempty"`
	DeployType string `json:"deployType,omitempty"`
}

// ScaffoldInputs are the inputs of a scaffold call.
type ScaffoldInputs struct {
	Inputs

	Template string `json:"template"`
	Language string `json:"language,omitempty"`
}

// Func names a user task.
type Func struct {
	Namespace string                 `json:"namespace"`
	Method    string                 `json:"method"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// AppManifest is the application manifest maintained by the ManifestProvider.
type AppManifest struct {
	ManifestVersion    string              `json:"manifestVersion"`
	Version            string              `json:"version"`
	ID                 string              `json:"id"`
	Name               AppName             `json:"name"`
	Description        AppDescription      `json:"description"`
	StaticTabs         []StaticTab         `json:"staticTabs,omitempty"`
	ConfigurableTabs   []ConfigurableTab   `json:"configurableTabs,omitempty"`
	Bots               []Bot               `json:"bots,omitempty"`
	ComposeExtensions  []ComposeExtension  `json:"composeExtensions,omitempty"`
	ValidDomains       []string            `json:"validDomains,omitempty"`
	WebApplicationInfo *WebApplicationInfo `json:"webApplicationInfo,omitempty"`
}

type AppName struct {
	Short string `json:"short"`
	Full  string `json:"full,omitempty"`
}

type AppDescription struct {
	Short string `json:"short"`
	Full  string `json:"full,omitempty"`
}

type StaticTab struct {
	EntityID   string   `json:"entityId"`
	Name       string   `json:"name"`
	ContentURL string   `json:"contentUrl"`
	WebsiteURL string   `json:"websiteUrl,omitempty"`
	Scopes     []string `json:"scopes"`
}

type ConfigurableTab struct {
	ConfigurationURL string   `json:"configurationUrl"`
	CanUpdate        bool     `json:"canUpdateConfiguration"`
	Scopes           []string `json:"scopes"`
}

type Bot struct {
	BotID  string   `json:"botId"`
	Scopes []string `json:"scopes"`
}

type ComposeExtension struct {
	BotID string `json:"botId"`
}

type WebApplicationInfo struct {
	ID       string `json:"id"`
	Resource string `json:"resource,omitempty"`
}

// Capability names a manifest capability.
type Capability string

const (
	CapabilityTab                Capability = "Tab"
	CapabilityBot                Capability = "Bot"
	CapabilityMessagingExtension Capability = "MessagingExtension"
	CapabilityWebApplicationInfo Capability = "WebApplicationInfo"
)

// CapabilityDescriptor is one capability to add to the manifest.
type CapabilityDescriptor struct {
	Name Capability `json:"name"`

	// Existing marks a capability backed by an app that is already hosted.
	Existing bool `json:"existingApp,omitempty"`

	// Snippet optionally overrides the default manifest entry.
	Snippet json.RawMessage `json:"snippet,omitempty"`
}

// Context is the mutable state threaded through every plugin call of one
// operation. Plugins pass state downstream only through this value.
type Context struct {
	ProjectSettings *ProjectSettings
	LocalSettings   LocalSettings
	Logger          zerolog.Logger
}

// ContextWithManifest adds the loaded app manifest for add and template stages.
type ContextWithManifest struct {
	*Context
	Manifest *AppManifest
}

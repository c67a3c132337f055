package builtin

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// ErrCodeNoSubscription is returned when provisioning without a subscription.
const ErrCodeNoSubscription = "NoSubscriptionFound"

// target identifies where an environment's resources live.
type target struct {
	app           string
	env           string
	subscription  string
	resourceGroup string
	location      string

	// config is the environment config.
	config map[string]interface{}
}

// name returns an Azure-safe resource name: lower case alphanumerics of the
// app name, then the env and the suffix, cut to max characters.
func (t target) name(suffix string, max int) string {
	base := nonAlnum.ReplaceAllString(strings.ToLower(t.app), "")
	env := nonAlnum.ReplaceAllString(strings.ToLower(t.env), "")
	name := base + env + suffix
	if len(name) > max {
		keep := max - len(env) - len(suffix)
		if keep < 1 {
			keep = 1
		}
		if keep < len(base) {
			base = base[:keep]
		}
		name = base + env + suffix
		if len(name) > max {
			name = name[:max]
		}
	}
	return name
}

// resourceID returns the ARM id of a resource in the target's group.
func (t target) resourceID(provider, name string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/%s/%s",
		t.subscription, t.resourceGroup, provider, name)
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// resolveTarget reads the subscription, resource group and location of env.
// The subscription comes from the environment config, then the token provider.
func resolveTarget(ctx context.Context, plugin string, pctx *engine.Context, env *engine.EnvInfo, tokens engine.TokenProvider) (target, error) {
	t := target{env: env.EnvName, location: DefaultLocation, config: env.Config}
	if pctx != nil && pctx.ProjectSettings != nil {
		t.app = pctx.ProjectSettings.AppName
	}
	t.subscription = azureConfig(env, ConfigSubscriptionID)
	if t.subscription == "" && tokens != nil {
		sub, err := tokens.SubscriptionID(ctx)
		if err != nil {
			return t, err
		}
		t.subscription = sub
	}
	if t.subscription == "" {
		return t, engine.NewUserError(plugin, ErrCodeNoSubscription, "no Azure subscription is selected").
			WithHint(fmt.Sprintf("set azure.%s in the config of environment %s", ConfigSubscriptionID, env.EnvName))
	}
	if t.resourceGroup = azureConfig(env, ConfigResourceGroup); t.resourceGroup == "" {
		t.resourceGroup = t.name("-rg", 90)
	}
	if v := azureConfig(env, ConfigLocation); v != "" {
		t.location = v
	}
	return t, nil
}

// azureConfig reads a string from the azure section of the env config.
func azureConfig(env *engine.EnvInfo, key string) string {
	section, ok := env.Config["azure"].(map[string]interface{})
	if !ok {
		return ""
	}
	v, _ := section[key].(string)
	return v
}

// azureResource is a resource plugin backed by one Azure resource.
type azureResource struct {
	desc engine.Descriptor

	// symbol prefixes the bicep module, parameter and output names.
	symbol string

	// provider is the ARM resource type, e.g. "Microsoft.Web/sites".
	provider string

	deps      []string
	configure bool

	// outputs derives the provisioned outputs. prev holds the outputs of
	// an earlier provision and is never nil.
	outputs func(t target, inputs *engine.Inputs, prev map[string]interface{}) (engine.CloudResource, error)

	// local derives local debug settings, if the resource has any.
	local func(pctx *engine.Context, prev map[string]interface{}) engine.CloudResource

	params map[string]interface{}
}

var (
	_ engine.DependencyProvider  = (*azureResource)(nil)
	_ engine.ResourceAdder       = (*azureResource)(nil)
	_ engine.TemplateGenerator   = (*azureResource)(nil)
	_ engine.TemplateUpdater     = (*azureResource)(nil)
	_ engine.ResourceProvisioner = (*azureResource)(nil)
	_ engine.ResourceConfigurer  = (*azureResource)(nil)
)

// Descriptor implements engine.Plugin.
func (r *azureResource) Descriptor() engine.Descriptor {
	return r.desc
}

// PluginDependencies implements engine.DependencyProvider.
func (r *azureResource) PluginDependencies(context.Context, *engine.Context, *engine.Inputs) ([]string, error) {
	return r.deps, nil
}

// AddResource implements engine.ResourceAdder. Adding never changes the
// generated fragment.
func (r *azureResource) AddResource(_ context.Context, cwm *engine.ContextWithManifest, _ *engine.Inputs) (*engine.ResourceTemplate, error) {
	cwm.Logger.Debug().Str("plugin", r.desc.Name).Msg("resource added")
	return nil, nil
}

// GenerateResourceTemplate implements engine.TemplateGenerator.
func (r *azureResource) GenerateResourceTemplate(context.Context, *engine.ContextWithManifest, *engine.Inputs) (*engine.ResourceTemplate, error) {
	return r.template(), nil
}

// UpdateResourceTemplate implements engine.TemplateUpdater.
func (r *azureResource) UpdateResourceTemplate(context.Context, *engine.ContextWithManifest, *engine.Inputs) (*engine.ResourceTemplate, error) {
	return r.template(), nil
}

func (r *azureResource) template() *engine.ResourceTemplate {
	provision := r.symbol + "Provision"
	tpl := &engine.ResourceTemplate{
		Kind: engine.TemplateKindBicep,
		Provision: &engine.TemplateSection{
			Orchestration: fmt.Sprintf(`module %[1]s './provision/%[1]s.bicep' = {
  name: '%[1]s'
  params: {
    provisionParameters: provisionParameters
  }
}`, provision),
			Modules: map[string]string{provision: fmt.Sprintf(`param provisionParameters object

var resourceName = provisionParameters['%[1]sName']

resource %[1]s '%[2]s@2021-06-01' = {
  name: resourceName
  location: resourceGroup().location
}

output resourceId string = %[1]s.id
`, r.symbol, r.provider)},
			Reference: map[string]string{
				r.symbol + "ResourceId": provision + ".outputs.resourceId",
			},
		},
		Parameters: map[string]interface{}{r.symbol + "Name": "{{" + r.desc.Name + "." + KeyResourceName + "}}"},
	}
	for k, v := range r.params {
		tpl.Parameters[k] = v
	}
	if r.configure {
		config := r.symbol + "Config"
		tpl.Configuration = &engine.TemplateSection{
			Orchestration: fmt.Sprintf(`module %[1]s './teamsFx/%[1]s.bicep' = {
  name: '%[1]s'
  params: {
    provisionOutputs: provisionOutputs
  }
}`, config),
			Modules: map[string]string{config: "param provisionOutputs object\n"},
		}
	}
	return tpl
}

// ProvisionResource implements engine.ResourceProvisioner. Outputs of an
// earlier provision are kept so provisioning is repeatable.
func (r *azureResource) ProvisionResource(ctx context.Context, pctx *engine.Context, inputs *engine.Inputs, env *engine.EnvInfo, tokens engine.TokenProvider) (engine.CloudResource, error) {
	t, err := resolveTarget(ctx, r.desc.Name, pctx, env, tokens)
	if err != nil {
		return nil, err
	}
	prev := env.State[r.desc.Name]
	if prev == nil {
		prev = map[string]interface{}{}
	}
	out := engine.CloudResource{}
	if r.outputs != nil {
		if out, err = r.outputs(t, inputs, prev); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = engine.CloudResource{}
	}
	if _, ok := out[KeyResourceName]; !ok {
		out[KeyResourceName] = t.name(strings.ToLower(r.symbol), 60)
	}
	out[KeyResourceID] = t.resourceID(r.provider, out[KeyResourceName].(string))
	pctx.Logger.Info().Str("plugin", r.desc.Name).Str("resource_id", out[KeyResourceID].(string)).Msg("resource provisioned")
	return out, nil
}

// ConfigureResource implements engine.ResourceConfigurer. It checks the
// resource was provisioned in this environment.
func (r *azureResource) ConfigureResource(_ context.Context, _ *engine.Context, _ *engine.Inputs, env *engine.EnvInfo, _ engine.TokenProvider) (engine.CloudResource, error) {
	if _, ok := env.State[r.desc.Name][KeyResourceID]; !ok {
		return nil, notProvisioned(r.desc.Name, env.EnvName)
	}
	return nil, nil
}

// ProvisionLocalResource implements engine.LocalProvisioner for resources
// with local settings. Resources without local settings return nothing.
func (r *azureResource) ProvisionLocalResource(_ context.Context, pctx *engine.Context, _ *engine.Inputs, local engine.LocalSettings, _ engine.TokenProvider) (engine.CloudResource, error) {
	if r.local == nil {
		return nil, nil
	}
	prev := local[r.desc.Name]
	if prev == nil {
		prev = map[string]interface{}{}
	}
	return r.local(pctx, prev), nil
}

func notProvisioned(plugin, env string) *engine.FxError {
	return engine.NewUserError(plugin, engine.ErrCodeEnvNotProvisioned,
		fmt.Sprintf("%s is not provisioned in environment %s", plugin, env)).
		WithHint(fmt.Sprintf("run 'fx provision --env %s' first", env))
}

// keep returns prev[key] when it is a non-empty string, otherwise def().
func keep(prev map[string]interface{}, key string, def func() string) string {
	if v, ok := prev[key].(string); ok && v != "" {
		return v
	}
	return def()
}

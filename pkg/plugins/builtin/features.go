package builtin

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// QuestionBotCapabilities selects the bot capabilities to add.
const QuestionBotCapabilities = "bot-capabilities"

type botFeature struct {
	*hostingResource
}

var (
	_ engine.FeatureAdder          = (*botFeature)(nil)
	_ engine.QuestionProvider      = (*botFeature)(nil)
	_ engine.CapabilityContributor = (*botFeature)(nil)
	_ engine.LocalProvisioner      = (*botFeature)(nil)
)

// NewBot returns the bot feature. It registers an Azure Bot backed by an
// App Service site; the bot password is kept secret in the environment state.
func NewBot() engine.Plugin {
	return &botFeature{hostingResource: &hostingResource{
		azureResource: &azureResource{
			desc: engine.Descriptor{
				Name:        Bot,
				DisplayName: "Bot",
				Description: "Conversational bot and messaging extension",
				Kind:        engine.KindFeature,
			},
			symbol:    "bot",
			provider:  "Microsoft.BotService/botServices",
			deps:      []string{AAD},
			configure: true,
			outputs: func(t target, _ *engine.Inputs, prev map[string]interface{}) (engine.CloudResource, error) {
				site := t.name("bot", 60)
				domain := site + ".azurewebsites.net"
				out := engine.CloudResource{
					KeyResourceName: site,
					KeyDomain:       domain,
					KeyEndpoint:     "https://" + domain,
					"validDomain":   domain,
					"botId":         keep(prev, "botId", uuid.NewString),
					"botPassword":   keep(prev, "botPassword", generatePassword),
				}
				out[engine.SecretFieldsKey] = []string{"botPassword"}
				return out, nil
			},
			local: func(_ *engine.Context, prev map[string]interface{}) engine.CloudResource {
				return engine.CloudResource{
					"botId":       keep(prev, "botId", uuid.NewString),
					"botPassword": keep(prev, "botPassword", generatePassword),
					KeyEndpoint:   "https://localhost:3978",
				}
			},
		},
		dir: "bot",
	}}
}

// AddFeature implements engine.FeatureAdder.
func (b *botFeature) AddFeature(_ context.Context, cwm *engine.ContextWithManifest, inputs *engine.Inputs) (*engine.ResourceTemplate, error) {
	caps, err := botCapabilities(inputs)
	if err != nil {
		return nil, err
	}
	cwm.Logger.Debug().Strs("capabilities", caps).Msg("bot feature added")
	return nil, nil
}

// ManifestCapabilities implements engine.CapabilityContributor.
func (b *botFeature) ManifestCapabilities(inputs *engine.Inputs) []engine.CapabilityDescriptor {
	caps, err := botCapabilities(inputs)
	if err != nil {
		return nil
	}
	out := make([]engine.CapabilityDescriptor, 0, len(caps))
	for _, c := range caps {
		out = append(out, engine.CapabilityDescriptor{Name: engine.Capability(c)})
	}
	return out
}

// QuestionsFor implements engine.QuestionProvider.
func (b *botFeature) QuestionsFor(_ context.Context, stage engine.Stage, _ *engine.Context, _ *engine.Inputs) (*engine.QTreeNode, error) {
	if stage != engine.StageAddFeature {
		return nil, nil
	}
	return &engine.QTreeNode{Data: engine.Question{
		Name:  QuestionBotCapabilities,
		Type:  engine.QuestionMultiSelect,
		Title: "Select bot capabilities",
		StaticOptions: []engine.OptionItem{
			{ID: string(engine.CapabilityBot), Label: "Bot"},
			{ID: string(engine.CapabilityMessagingExtension), Label: "Messaging Extension"},
		},
		Default: []string{string(engine.CapabilityBot)},
	}}, nil
}

// botCapabilities reads the selected capabilities, Bot by default.
func botCapabilities(inputs *engine.Inputs) ([]string, error) {
	var raw []string
	if inputs != nil {
		switch v := inputs.Answers[QuestionBotCapabilities].(type) {
		case nil:
		case string:
			raw = []string{v}
		case []string:
			raw = v
		case []interface{}:
			for _, c := range v {
				s, ok := c.(string)
				if !ok {
					return nil, engine.InvalidInputError(fmt.Sprintf("%s must be a list of strings", QuestionBotCapabilities))
				}
				raw = append(raw, s)
			}
		default:
			return nil, engine.InvalidInputError(fmt.Sprintf("%s must be a list of strings", QuestionBotCapabilities))
		}
	}
	if len(raw) == 0 {
		return []string{string(engine.CapabilityBot)}, nil
	}
	for _, c := range raw {
		if c != string(engine.CapabilityBot) && c != string(engine.CapabilityMessagingExtension) {
			return nil, engine.InvalidInputError(fmt.Sprintf("unknown bot capability %q", c))
		}
	}
	return raw, nil
}

type aadFeature struct {
	desc engine.Descriptor
}

var (
	_ engine.FeatureAdder              = (*aadFeature)(nil)
	_ engine.OtherFeaturesAddedHandler = (*aadFeature)(nil)
	_ engine.TemplateGenerator         = (*aadFeature)(nil)
	_ engine.ResourceProvisioner       = (*aadFeature)(nil)
	_ engine.ResourceConfigurer        = (*aadFeature)(nil)
	_ engine.LocalProvisioner          = (*aadFeature)(nil)
	_ engine.CapabilityContributor     = (*aadFeature)(nil)
)

// NewAAD returns the single sign-on feature registering the Azure AD app.
func NewAAD() engine.Plugin {
	return &aadFeature{desc: engine.Descriptor{
		Name:        AAD,
		DisplayName: "Azure AD App",
		Description: "Single sign-on with an Azure AD app registration",
		Kind:        engine.KindFeature,
	}}
}

// Descriptor implements engine.Plugin.
func (a *aadFeature) Descriptor() engine.Descriptor {
	return a.desc
}

// AddFeature implements engine.FeatureAdder.
func (a *aadFeature) AddFeature(context.Context, *engine.ContextWithManifest, *engine.Inputs) (*engine.ResourceTemplate, error) {
	return nil, nil
}

// GenerateResourceTemplate implements engine.TemplateGenerator.
func (a *aadFeature) GenerateResourceTemplate(_ context.Context, cwm *engine.ContextWithManifest, _ *engine.Inputs) (*engine.ResourceTemplate, error) {
	return a.template(cwm.ProjectSettings.Solution.IsActive(Bot)), nil
}

// AfterOtherFeaturesAdded implements engine.OtherFeaturesAddedHandler. The
// fragment gains the bot identity once the bot feature is added.
func (a *aadFeature) AfterOtherFeaturesAdded(_ context.Context, cwm *engine.ContextWithManifest, _ *engine.Inputs, features []string) (*engine.ResourceTemplate, error) {
	withBot := slices.Contains(features, Bot) || cwm.ProjectSettings.Solution.IsActive(Bot)
	return a.template(withBot), nil
}

func (a *aadFeature) template(withBot bool) *engine.ResourceTemplate {
	ref := func(key string) string { return "{{" + AAD + "." + key + "}}" }
	tpl := &engine.ResourceTemplate{
		Kind: engine.TemplateKindBicep,
		Parameters: map[string]interface{}{
			"m365ClientId":           ref("clientId"),
			"m365ClientSecret":       ref("clientSecret"),
			"m365TenantId":           ref("tenantId"),
			"m365OauthAuthorityHost": "https://login.microsoftonline.com",
		},
	}
	if withBot {
		tpl.Parameters["m365ApplicationIdUri"] = ref("applicationIdUris")
	}
	return tpl
}

// ManifestCapabilities implements engine.CapabilityContributor.
func (a *aadFeature) ManifestCapabilities(*engine.Inputs) []engine.CapabilityDescriptor {
	return []engine.CapabilityDescriptor{{Name: engine.CapabilityWebApplicationInfo}}
}

// ProvisionResource implements engine.ResourceProvisioner. The app ids
// survive re-provisioning.
func (a *aadFeature) ProvisionResource(_ context.Context, pctx *engine.Context, _ *engine.Inputs, env *engine.EnvInfo, _ engine.TokenProvider) (engine.CloudResource, error) {
	prev := env.State[AAD]
	out := a.registration(prev)
	if v := azureConfig(env, ConfigTenantID); v != "" {
		out["tenantId"] = v
	}
	pctx.Logger.Info().Str("plugin", AAD).Str("client_id", out["clientId"].(string)).Msg("aad app registered")
	return out, nil
}

// ConfigureResource implements engine.ResourceConfigurer. It runs after
// every plugin provisioned, so the tab and bot endpoints are known.
func (a *aadFeature) ConfigureResource(_ context.Context, _ *engine.Context, _ *engine.Inputs, env *engine.EnvInfo, _ engine.TokenProvider) (engine.CloudResource, error) {
	clientID, ok := env.State[AAD]["clientId"].(string)
	if !ok {
		return nil, notProvisioned(AAD, env.EnvName)
	}
	out := engine.CloudResource{}
	if domain, ok := env.State[FrontendHosting][KeyDomain].(string); ok {
		out["applicationIdUris"] = fmt.Sprintf("api://%s/%s", domain, clientID)
		out["redirectUri"] = fmt.Sprintf("https://%s/auth-end.html", domain)
	}
	if botID, ok := env.State[Bot]["botId"].(string); ok {
		out["botApplicationIdUri"] = "api://botid-" + botID
	}
	return out, nil
}

// ProvisionLocalResource implements engine.LocalProvisioner.
func (a *aadFeature) ProvisionLocalResource(_ context.Context, _ *engine.Context, _ *engine.Inputs, local engine.LocalSettings, _ engine.TokenProvider) (engine.CloudResource, error) {
	out := a.registration(local[AAD])
	delete(out, engine.SecretFieldsKey)
	out["applicationIdUris"] = "api://localhost/" + out["clientId"].(string)
	return out, nil
}

func (a *aadFeature) registration(prev map[string]interface{}) engine.CloudResource {
	if prev == nil {
		prev = map[string]interface{}{}
	}
	out := engine.CloudResource{
		"clientId":                keep(prev, "clientId", uuid.NewString),
		"objectId":                keep(prev, "objectId", uuid.NewString),
		"oauth2PermissionScopeId": keep(prev, "oauth2PermissionScopeId", uuid.NewString),
		"clientSecret":            keep(prev, "clientSecret", generatePassword),
		"oauthAuthority":          "https://login.microsoftonline.com",
	}
	out[engine.SecretFieldsKey] = []string{"clientSecret"}
	return out
}

package builtin

import (
	"context"
	"fmt"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// Local endpoints used while debugging.
const (
	LocalTabEndpoint      = "https://localhost:53000"
	LocalFunctionEndpoint = "http://localhost:7071"
	LocalBotEndpoint      = "https://localhost:3978"
	LocalAuthEndpoint     = "http://localhost:55000"
)

type localDebug struct {
	desc engine.Descriptor
}

var (
	_ engine.LocalProvisioner = (*localDebug)(nil)
	_ engine.LocalConfigurer  = (*localDebug)(nil)
)

// NewLocalDebug returns the local debug plugin. Its state only belongs in
// the local environment.
func NewLocalDebug() engine.Plugin {
	return &localDebug{desc: engine.Descriptor{
		Name:         LocalDebug,
		DisplayName:  "Local Debug",
		Description:  "Runs the project on the local machine",
		Kind:         engine.KindResource,
		ResourceType: "Local Debug",
	}}
}

func (l *localDebug) Descriptor() engine.Descriptor {
	return l.desc
}

// ProvisionLocalResource implements engine.LocalProvisioner. It selects the
// local endpoints of the active plugins.
func (l *localDebug) ProvisionLocalResource(_ context.Context, pctx *engine.Context, _ *engine.Inputs, local engine.LocalSettings, _ engine.TokenProvider) (engine.CloudResource, error) {
	sol := pctx.ProjectSettings.Solution
	out := engine.CloudResource{"trustDevCert": true}
	if v, ok := local[LocalDebug]["trustDevCert"].(bool); ok {
		out["trustDevCert"] = v
	}
	if sol.IsActive(FrontendHosting) || sol.IsActive(SPFx) {
		out["localTabEndpoint"] = LocalTabEndpoint
		out["localTabDomain"] = "localhost"
	}
	if sol.IsActive(Function) {
		out["localFunctionEndpoint"] = LocalFunctionEndpoint
	}
	if sol.IsActive(Bot) {
		out["localBotEndpoint"] = LocalBotEndpoint
	}
	if sol.IsActive(SimpleAuth) {
		out["localAuthEndpoint"] = LocalAuthEndpoint
	}
	return out, nil
}

// ConfigureLocalResource implements engine.LocalConfigurer. It runs after
// every plugin set up its local settings and links them together.
func (l *localDebug) ConfigureLocalResource(_ context.Context, pctx *engine.Context, _ *engine.Inputs, local engine.LocalSettings, _ engine.TokenProvider) error {
	sol := pctx.ProjectSettings.Solution
	entry := local[LocalDebug]
	if entry == nil {
		entry = map[string]interface{}{}
		local[LocalDebug] = entry
	}
	if sol.IsActive(AAD) {
		clientID, ok := local[AAD]["clientId"].(string)
		if !ok {
			return engine.NewUserError(LocalDebug, engine.ErrCodeInvalidProjectSettings,
				fmt.Sprintf("local settings of %s are missing", AAD))
		}
		entry["localAuthClientId"] = clientID
	}
	if sol.IsActive(Bot) {
		botID, ok := local[Bot]["botId"].(string)
		if !ok {
			return engine.NewUserError(LocalDebug, engine.ErrCodeInvalidProjectSettings,
				fmt.Sprintf("local settings of %s are missing", Bot))
		}
		entry["localBotId"] = botID
	}
	pctx.Logger.Debug().Interface("local", entry).Msg("local debug configured")
	return nil
}

package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

type spfxResource struct {
	desc engine.Descriptor
}

var (
	_ engine.ResourceAdder         = (*spfxResource)(nil)
	_ engine.CapabilityContributor = (*spfxResource)(nil)
	_ engine.PreDeployer           = (*spfxResource)(nil)
	_ engine.Deployer              = (*spfxResource)(nil)
)

// NewSPFx returns the SharePoint Framework plugin. Tabs hosted by SPFx are
// deployed as a solution package to the tenant app catalog; no Azure
// resource is provisioned.
func NewSPFx() engine.Plugin {
	return &spfxResource{desc: engine.Descriptor{
		Name:         SPFx,
		DisplayName:  "SharePoint Framework",
		Description:  "Tabs hosted in SharePoint",
		Kind:         engine.KindResource,
		ResourceType: "SharePoint Framework",
	}}
}

func (s *spfxResource) Descriptor() engine.Descriptor {
	return s.desc
}

func (s *spfxResource) AddResource(context.Context, *engine.ContextWithManifest, *engine.Inputs) (*engine.ResourceTemplate, error) {
	return nil, nil
}

func (s *spfxResource) ManifestCapabilities(*engine.Inputs) []engine.CapabilityDescriptor {
	return []engine.CapabilityDescriptor{{Name: engine.CapabilityTab}}
}

func (s *spfxResource) PreDeploy(_ context.Context, pctx *engine.Context, inputs *engine.DeployInputs, _ *engine.EnvInfo, _ engine.TokenProvider) error {
	path := s.packagePath(pctx, inputs)
	if _, err := os.Stat(path); err != nil {
		return engine.NewUserError(SPFx, engine.ErrCodePathNotExist,
			fmt.Sprintf("solution package %s does not exist", path)).
			WithHint("run 'gulp bundle --ship' and 'gulp package-solution --ship' first").
			WithCause(err)
	}
	return nil
}

func (s *spfxResource) Deploy(ctx context.Context, pctx *engine.Context, inputs *engine.DeployInputs, env *engine.EnvInfo, _ engine.TokenProvider) error {
	path := s.packagePath(pctx, inputs)
	sum, err := checksum(ctx, path)
	if err != nil {
		return err
	}
	env.State.Merge(SPFx, engine.CloudResource{
		"packagePath":     path,
		KeyDeployChecksum: sum,
		KeyLastDeployTime: time.Now().UTC().Format(time.RFC3339),
	})
	pctx.Logger.Info().Str("plugin", SPFx).Str("package", path).Msg("solution package uploaded to the app catalog")
	return nil
}

// packagePath is <dir>/<buildPath>/<app>.sppkg, by default
// SPFx/sharepoint/solution/<app>.sppkg.
func (s *spfxResource) packagePath(pctx *engine.Context, inputs *engine.DeployInputs) string {
	dir := inputs.Dir
	if dir == "" {
		dir = "SPFx"
	}
	build := inputs.BuildPath
	if build == "" {
		build = filepath.Join("sharepoint", "solution")
	}
	app := "app"
	if pctx.ProjectSettings != nil && pctx.ProjectSettings.AppName != "" {
		app = pctx.ProjectSettings.AppName
	}
	return filepath.Join(inputs.ProjectPath, dir, build, app+".sppkg")
}

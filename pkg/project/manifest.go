package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// ManifestVersion is the schema version of generated manifests.
const ManifestVersion = "1.11"

// Capability limits of one app manifest.
const (
	MaxStaticTabs        = 16
	MaxBots              = 1
	MaxComposeExtensions = 1
)

// ErrCodeCapabilityLimit reports a capability added beyond its limit.
const ErrCodeCapabilityLimit = "CapabilityExceedLimit"

// Placeholders resolved from env state when the app package is built.
const (
	BotIDPlaceholder       = "{{state.fx-resource-bot.botId}}"
	TabEndpointPlaceholder = "{{state.fx-resource-frontend-hosting.endpoint}}"
	AADClientIDPlaceholder = "{{state.fx-resource-aad-app-for-teams.clientId}}"
	AADResourcePlaceholder = "{{state.fx-resource-aad-app-for-teams.applicationIdUris}}"
	AppIDPlaceholder       = "{{state.fx-resource-appstudio.teamsAppId}}"
)

// ManifestFile returns the manifest template path of a project.
func ManifestFile(projectPath string) string {
	return filepath.Join(projectPath, "templates", "appPackage", "manifest.template.json")
}

// FileManifestProvider stores the app manifest as a JSON file in the project.
type FileManifestProvider struct{}

// NewFileManifestProvider creates a manifest provider.
func NewFileManifestProvider() *FileManifestProvider {
	return &FileManifestProvider{}
}

// LoadManifest reads the manifest template. A project without one gets a
// default manifest derived from its settings.
func (p *FileManifestProvider) LoadManifest(ctx context.Context, pctx *engine.Context, inputs *engine.Inputs) (*engine.AppManifest, error) {
	path := ManifestFile(inputs.ProjectPath)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultManifest(pctx.ProjectSettings), nil
	}
	if err != nil {
		return nil, engine.NewSystemError(engine.SourceManifest, engine.ErrCodeReadFile,
			fmt.Sprintf("failed to read %s", path)).WithCause(err)
	}
	var m engine.AppManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, engine.NewUserError(engine.SourceManifest, engine.ErrCodeInvalidInput,
			fmt.Sprintf("invalid manifest %s", path)).WithCause(err)
	}
	return &m, nil
}

// SaveManifest writes the manifest template.
func (p *FileManifestProvider) SaveManifest(ctx context.Context, pctx *engine.Context, inputs *engine.Inputs, manifest *engine.AppManifest) error {
	if manifest == nil {
		return engine.InvalidInputError("manifest is missing")
	}
	return writeJSON(ManifestFile(inputs.ProjectPath), manifest)
}

// AddCapabilities adds manifest entries for capabilities and saves the result.
func (p *FileManifestProvider) AddCapabilities(ctx context.Context, pctx *engine.Context, inputs *engine.Inputs, capabilities []engine.CapabilityDescriptor) error {
	m, err := p.LoadManifest(ctx, pctx, inputs)
	if err != nil {
		return err
	}
	for _, c := range capabilities {
		if err := AddCapability(m, c); err != nil {
			return err
		}
	}
	return p.SaveManifest(ctx, pctx, inputs, m)
}

// DefaultManifest returns the manifest of a project without one.
func DefaultManifest(settings *engine.ProjectSettings) *engine.AppManifest {
	name := "fx-app"
	if settings != nil && settings.AppName != "" {
		name = settings.AppName
	}
	return &engine.AppManifest{
		ManifestVersion: ManifestVersion,
		Version:         "1.0.0",
		ID:              AppIDPlaceholder,
		Name:            engine.AppName{Short: name, Full: name},
		Description: engine.AppDescription{
			Short: "Short description of " + name,
			Full:  "Full description of " + name,
		},
		ValidDomains: []string{},
	}
}

// AddCapability adds one capability entry to m. A snippet replaces the
// default entry.
func AddCapability(m *engine.AppManifest, c engine.CapabilityDescriptor) error {
	switch c.Name {
	case engine.CapabilityTab:
		if len(m.StaticTabs) >= MaxStaticTabs {
			return limitError(c.Name, MaxStaticTabs)
		}
		tab := engine.StaticTab{
			EntityID:   fmt.Sprintf("index%d", len(m.StaticTabs)),
			Name:       "Personal Tab",
			ContentURL: TabEndpointPlaceholder + "/index.html#/tab",
			WebsiteURL: TabEndpointPlaceholder + "/index.html#/tab",
			Scopes:     []string{"personal"},
		}
		if c.Existing {
			tab.ContentURL = "{{config.manifest.tabContentUrl}}"
			tab.WebsiteURL = "{{config.manifest.tabWebsiteUrl}}"
		}
		if err := applySnippet(c, &tab); err != nil {
			return err
		}
		m.StaticTabs = append(m.StaticTabs, tab)

	case engine.CapabilityBot:
		if len(m.Bots) >= MaxBots {
			return limitError(c.Name, MaxBots)
		}
		bot := engine.Bot{BotID: BotIDPlaceholder, Scopes: []string{"personal", "team", "groupchat"}}
		if c.Existing {
			bot.BotID = "{{config.manifest.botId}}"
		}
		if err := applySnippet(c, &bot); err != nil {
			return err
		}
		m.Bots = append(m.Bots, bot)

	case engine.CapabilityMessagingExtension:
		if len(m.ComposeExtensions) >= MaxComposeExtensions {
			return limitError(c.Name, MaxComposeExtensions)
		}
		ext := engine.ComposeExtension{BotID: BotIDPlaceholder}
		if c.Existing {
			ext.BotID = "{{config.manifest.botId}}"
		}
		if err := applySnippet(c, &ext); err != nil {
			return err
		}
		m.ComposeExtensions = append(m.ComposeExtensions, ext)

	case engine.CapabilityWebApplicationInfo:
		info := &engine.WebApplicationInfo{ID: AADClientIDPlaceholder, Resource: AADResourcePlaceholder}
		if err := applySnippet(c, info); err != nil {
			return err
		}
		m.WebApplicationInfo = info

	default:
		return engine.InvalidInputError(fmt.Sprintf("unknown capability %q", c.Name))
	}
	return nil
}

func applySnippet(c engine.CapabilityDescriptor, v interface{}) error {
	if len(c.Snippet) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Snippet, v); err != nil {
		return engine.InvalidInputError(fmt.Sprintf("invalid %s snippet", c.Name)).WithCause(err)
	}
	return nil
}

func limitError(c engine.Capability, max int) *engine.FxError {
	return engine.NewUserError(engine.SourceManifest, ErrCodeCapabilityLimit,
		fmt.Sprintf("%s capability exceeds the limit of %d", c, max)).
		WithDetail("capability", string(c))
}

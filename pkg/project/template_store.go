package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// AzureTemplateDir returns the directory of the generated bicep files.
func AzureTemplateDir(projectPath string) string {
	return filepath.Join(projectPath, "templates", "azure")
}

const (
	compositeFile  = "composite.json"
	parametersFile = "parameters.json"
)

// FileTemplateStore writes composite templates as bicep files.
type FileTemplateStore struct {
	logger zerolog.Logger
}

// NewFileTemplateStore creates a template store.
func NewFileTemplateStore(logger zerolog.Logger) *FileTemplateStore {
	return &FileTemplateStore{logger: logger.With().Str("component", "template-store").Logger()}
}

// SaveTemplate writes main.bicep, provision.bicep, config.bicep, one file
// per module, the parameters and the composite itself.
func (s *FileTemplateStore) SaveTemplate(ctx context.Context, projectPath string, tpl *engine.CompositeTemplate) error {
	if tpl == nil {
		return engine.InvalidInputError("template is missing")
	}
	if tpl.Kind != "" && tpl.Kind != engine.TemplateKindBicep {
		return engine.NewSystemError(SourceProject, engine.ErrCodeTemplateKindMismatch,
			fmt.Sprintf("cannot store %s templates", tpl.Kind))
	}
	dir := AzureTemplateDir(projectPath)

	files := map[string]string{
		"main.bicep":      mainBicep(tpl),
		"provision.bicep": tpl.ProvisionOrchestration(),
		"config.bicep":    tpl.ConfigurationOrchestration(),
	}
	for name, content := range tpl.Modules {
		if err := checkModuleName(name); err != nil {
			return err
		}
		files[filepath.Join("provision", name+".bicep")] = content
	}
	for name, content := range tpl.ConfigurationModules {
		if err := checkModuleName(name); err != nil {
			return err
		}
		files[filepath.Join("teamsFx", name+".bicep")] = content
	}

	for _, name := range sortedNames(files) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(dir, name), files[name]); err != nil {
			return err
		}
	}
	if err := writeJSON(filepath.Join(dir, parametersFile), parameterFile(tpl.Parameters)); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, compositeFile), tpl); err != nil {
		return err
	}

	s.logger.Debug().
		Str("dir", dir).
		Int("files", len(files)+2).
		Strs("plugins", tpl.Plugins()).
		Msg("template saved")
	return nil
}

// LoadTemplate reads the composite written by SaveTemplate. A project
// without one yields (nil, nil).
func (s *FileTemplateStore) LoadTemplate(ctx context.Context, projectPath string) (*engine.CompositeTemplate, error) {
	path := filepath.Join(AzureTemplateDir(projectPath), compositeFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, engine.NewSystemError(SourceProject, engine.ErrCodeReadFile,
			fmt.Sprintf("failed to read %s", path)).WithCause(err)
	}
	var tpl engine.CompositeTemplate
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, engine.NewSystemError(SourceProject, engine.ErrCodeReadFile,
			fmt.Sprintf("failed to parse %s", path)).WithCause(err)
	}
	return &tpl, nil
}

func mainBicep(tpl *engine.CompositeTemplate) string {
	var b strings.Builder
	b.WriteString("@secure()\nparam provisionParameters object\n\n")
	b.WriteString("module provision './provision.bicep' = {\n")
	b.WriteString("  name: 'provisionResources'\n")
	b.WriteString("  params: {\n    provisionParameters: provisionParameters\n  }\n}\n")
	b.WriteString("output provisionOutput object = provision\n")
	if tpl.ConfigurationOrchestration() != "" {
		b.WriteString("\nmodule config './config.bicep' = {\n")
		b.WriteString("  name: 'configureResources'\n")
		b.WriteString("  params: {\n    provisionParameters: provisionParameters\n")
		b.WriteString("    provisionOutputs: provision\n  }\n}\n")
	}
	for _, name := range sortedNames(tpl.Outputs) {
		fmt.Fprintf(&b, "output %s string = %s\n", name, tpl.Outputs[name])
	}
	return b.String()
}

// parameterFile renders parameters in the ARM deployment parameters shape.
func parameterFile(params map[string]interface{}) map[string]interface{} {
	values := make(map[string]interface{}, len(params))
	for k, v := range params {
		values[k] = v
	}
	return map[string]interface{}{
		"$schema":        "https://schema.management.azure.com/schemas/2019-04-01/deploymentParameters.json#",
		"contentVersion": "1.0.0.0",
		"parameters": map[string]interface{}{
			"provisionParameters": map[string]interface{}{"value": values},
		},
	}
}

func checkModuleName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return engine.InvalidInputError(fmt.Sprintf("invalid template module name %q", name)).
			WithSource(SourceProject)
	}
	return nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return writeError(path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return writeError(path, err)
	}
	return nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

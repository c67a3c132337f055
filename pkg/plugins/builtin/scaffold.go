package builtin

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/project"
)

//go:embed templates/tab
var tabTemplates embed.FS

// Tab template names.
const (
	TemplateReactTab = "react-tab"
)

type tabScaffold struct {
	desc engine.Descriptor
}

var _ engine.Scaffolder = (*tabScaffold)(nil)

// NewTabScaffold returns the scaffold plugin creating React tab modules.
func NewTabScaffold() engine.Plugin {
	return &tabScaffold{desc: engine.Descriptor{
		Name:        TabScaffold,
		DisplayName: "React Tab",
		Description: "Creates a tab module built with React",
		Kind:        engine.KindScaffold,
	}}
}

func (s *tabScaffold) Descriptor() engine.Descriptor {
	return s.desc
}

// GetTemplates implements engine.Scaffolder.
func (s *tabScaffold) GetTemplates(context.Context, *engine.Context, *engine.Inputs) ([]engine.ScaffoldTemplate, error) {
	var out []engine.ScaffoldTemplate
	for _, lang := range []string{"typescript", "javascript"} {
		out = append(out, engine.ScaffoldTemplate{
			Name:        TemplateReactTab,
			Language:    lang,
			Description: "React tab in " + lang,
			Modules: []engine.Module{{
				Capabilities: []string{string(engine.CapabilityTab)},
				Dir:          "tabs",
				BuildPath:    "build",
				DeployType:   "folder",
			}},
		})
	}
	return out, nil
}

// Scaffold implements engine.Scaffolder. It writes the tab sources to the
// module folder, which must not exist yet, and registers the tab in the
// module and the manifest.
func (s *tabScaffold) Scaffold(_ context.Context, cwm *engine.ContextWithManifest, inputs *engine.ScaffoldInputs) error {
	if inputs.Template != "" && inputs.Template != TemplateReactTab {
		return engine.InvalidInputError(fmt.Sprintf("unknown template %q", inputs.Template))
	}
	settings := cwm.ProjectSettings
	module, ok := settings.Solution.Module(*inputs.Module)
	if !ok {
		return engine.InvalidInputError(fmt.Sprintf("module %d does not exist", *inputs.Module))
	}

	lang := inputs.Language
	if lang == "" {
		lang = settings.ProgrammingLanguage
	}
	if lang != "typescript" && lang != "javascript" {
		return engine.InvalidInputError(fmt.Sprintf("unsupported language %q", lang))
	}

	if module.Dir == "" {
		module.Dir = tabDir(settings.Solution.Modules, *inputs.Module)
	}
	root := filepath.Join(inputs.ProjectPath, module.Dir)
	if entries, err := os.ReadDir(root); err == nil && len(entries) > 0 {
		return engine.NewUserError(TabScaffold, engine.ErrCodeInvalidInput,
			fmt.Sprintf("folder %s already exists and is not empty", root))
	}

	data := tabData{
		AppName:    settings.AppName,
		Package:    strings.ToLower(strings.ReplaceAll(settings.AppName, " ", "-")) + "-tab",
		TypeScript: lang == "typescript",
	}
	if err := renderTree(tabTemplates, "templates/tab", root, data); err != nil {
		return err
	}

	module.BuildPath = "build"
	module.DeployType = "folder"
	if !slices.Contains(module.Capabilities, string(engine.CapabilityTab)) {
		module.Capabilities = append(module.Capabilities, string(engine.CapabilityTab))
	}
	return project.AddCapability(cwm.Manifest, engine.CapabilityDescriptor{Name: engine.CapabilityTab})
}

type tabData struct {
	AppName    string
	Package    string
	TypeScript bool
}

// tabDir is "tabs" for the first tab module and "tabs<index>" after that.
func tabDir(modules []engine.Module, index int) string {
	for i, m := range modules {
		if i != index && m.Dir == "tabs" {
			return "tabs" + strconv.Itoa(index)
		}
	}
	return "tabs"
}

// renderTree executes every .tmpl file under dir of fsys into out, keeping
// the relative layout. src/index.tmpl becomes index.tsx or index.jsx.
func renderTree(fsys fs.FS, dir, out string, data tabData) error {
	return fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		tpl, err := template.New(path.Base(p)).Parse(string(raw))
		if err != nil {
			return fmt.Errorf("failed to parse template %s: %w", p, err)
		}
		var buf bytes.Buffer
		if err := tpl.Execute(&buf, data); err != nil {
			return fmt.Errorf("failed to render template %s: %w", p, err)
		}

		rel := strings.TrimSuffix(strings.TrimPrefix(p, dir+"/"), ".tmpl")
		if rel == "src/index" {
			if data.TypeScript {
				rel += ".tsx"
			} else {
				rel += ".jsx"
			}
		}
		target := filepath.Join(out, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(target, buf.Bytes(), 0644); err != nil {
			return engine.NewSystemError(TabScaffold, engine.ErrCodeWriteFile,
				fmt.Sprintf("failed to write %s", target)).WithCause(err)
		}
		return nil
	})
}

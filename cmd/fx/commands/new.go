package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/thomyg/TeamsFx/pkg/config"
	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/plugins/builtin"
)

func newNewCommand() *cobra.Command {
	var (
		language     string
		capabilities []string
		here         bool
	)

	cmd := &cobra.Command{
		Use:   "new <app-name>",
		Short: "Create a new Teams app project",
		Long: `Create a new project with the dev and local environments.

The project folder is <app-name> under --project unless --here is set.
Capabilities are added right away:
  - tab: scaffolds a React tab hosted on Azure Storage
  - bot: adds the bot feature`,
		Example: `  # Create a TypeScript project with a tab
  fx new todo-list --capabilities tab

  # Create the project in the current folder
  fx new todo-list --here --language javascript`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, c := range capabilities {
				if c != "tab" && c != "bot" {
					return engine.InvalidInputError(fmt.Sprintf("unknown capability %q", c))
				}
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if !here {
					a.project = filepath.Join(a.project, args[0])
				}
				return runNew(ctx, a, args[0], language, capabilities)
			})
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "typescript", "programming language (typescript, javascript)")
	cmd.Flags().StringSliceVar(&capabilities, "capabilities", nil, "capabilities to add (tab, bot)")
	cmd.Flags().BoolVar(&here, "here", false, "create the project in the --project folder itself")

	return cmd
}

func runNew(ctx context.Context, a *app, name, language string, capabilities []string) error {
	if _, err := a.core.CreateProject(ctx, a.inputs(), name, language); err != nil {
		return err
	}
	a.logger.Info().Str("app", name).Str("path", a.project).Msg("project created")
	if err := writeDefaultConfig(a.project); err != nil {
		return err
	}

	in := a.inputs()
	in.Resource = builtin.LocalDebug
	settings, err := a.core.AddResource(ctx, in)
	if err != nil {
		return err
	}

	if slices.Contains(capabilities, "tab") {
		scaffold := &engine.ScaffoldInputs{Inputs: *a.inputs(), Template: builtin.TemplateReactTab}
		if err := a.core.Scaffold(ctx, scaffold, builtin.TabScaffold); err != nil {
			return err
		}
		// The scaffolded module is the first one of a new project.
		in := a.inputs()
		in.Resource = builtin.FrontendHosting
		first := 0
		in.Module = &first
		if settings, err = a.core.AddResource(ctx, in); err != nil {
			return err
		}
	}
	if slices.Contains(capabilities, "bot") {
		in := a.inputs()
		in.Feature = builtin.Bot
		if settings, err = a.core.AddFeature(ctx, in); err != nil {
			return err
		}
	}

	return printResult(a.out, settings, fmt.Sprintf("Created %s in %s", name, a.project))
}

// writeDefaultConfig writes a starter .fx/fx.yaml unless one exists.
func writeDefaultConfig(projectPath string) error {
	path := filepath.Join(projectPath, ".fx", config.FileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := config.Default().Save(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

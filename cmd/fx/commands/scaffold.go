package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/plugins/builtin"
)

func newScaffoldCommand() *cobra.Command {
	var (
		plugin   string
		language string
		module   int
	)

	cmd := &cobra.Command{
		Use:   "scaffold [template]",
		Short: "Create module code from a template",
		Long: `Scaffold renders a template into a module folder. Without --module a new
module is appended to the project. Use 'fx scaffold list' to see the
templates.`,
		Example: `  # Add a React tab module
  fx scaffold react-tab

  # Scaffold JavaScript code into module 1
  fx scaffold react-tab --module 1 --language javascript`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			template := builtin.TemplateReactTab
			if len(args) > 0 {
				template = args[0]
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				in := &engine.ScaffoldInputs{Inputs: *a.inputs(), Template: template, Language: language}
				if cmd.Flags().Changed("module") {
					in.Module = &module
				}
				if err := a.core.Scaffold(ctx, in, plugin); err != nil {
					return err
				}
				return printResult(a.out, map[string]string{"plugin": plugin, "template": template},
					fmt.Sprintf("Scaffolded %s", template))
			})
		},
	}

	cmd.Flags().StringVar(&plugin, "plugin", builtin.TabScaffold, "scaffold plugin")
	cmd.Flags().StringVarP(&language, "language", "l", "", "language (default: project language)")
	cmd.Flags().IntVar(&module, "module", 0, "existing module to scaffold into")

	cmd.AddCommand(newScaffoldListCommand())
	return cmd
}

func newScaffoldListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scaffold templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				templates, err := a.core.ScaffoldTemplates(ctx, a.inputs())
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(a.out, templates)
				}
				plugins := make([]string, 0, len(templates))
				for p := range templates {
					plugins = append(plugins, p)
				}
				sort.Strings(plugins)
				var rows [][]string
				for _, p := range plugins {
					for _, t := range templates[p] {
						rows = append(rows, []string{t.Name, t.Language, p, t.Description})
					}
				}
				printTable(a.out, []string{"TEMPLATE", "LANGUAGE", "PLUGIN", "DESCRIPTION"}, rows)
				return nil
			})
		},
	}
}

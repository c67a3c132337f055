package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCapabilityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capability",
		Short: "Manage the features of the project",
	}
	cmd.AddCommand(newCapabilityAddCommand())
	return cmd
}

func newCapabilityAddCommand() *cobra.Command {
	var (
		module  int
		answers []string
	)

	cmd := &cobra.Command{
		Use:   "add <feature>",
		Short: "Add a feature such as bot or sso",
		Long: `Add a feature plugin to the project and the manifest capabilities it
brings. Features: bot, sso, or a plugin id.`,
		Example: `  # Add a bot with a messaging extension
  fx capability add bot --answer bot-capabilities=Bot,MessagingExtension

  # Add single sign-on
  fx capability add sso`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseAnswers(answers)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				in := a.inputs()
				in.Feature = pluginID(args[0])
				in.Answers = parsed
				if cmd.Flags().Changed("module") {
					in.Module = &module
				}
				settings, err := a.core.AddFeature(ctx, in)
				if err != nil {
					return err
				}
				return printResult(a.out, settings.Solution,
					fmt.Sprintf("Added %s; active plugins: %s", in.Feature, strings.Join(settings.Solution.ActiveResourcePlugins, ", ")))
			})
		},
	}

	cmd.Flags().IntVar(&module, "module", 0, "module gaining the feature")
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "question answer as name=value (repeatable)")

	return cmd
}

package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath  string
	projectPath string
	verbose     bool
	jsonOutput  bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fx",
		Short: "fx - Teams app project scaffolding and Azure provisioning",
		Long: `fx creates Teams app projects and manages their cloud resources.

Features:
  - Resource and feature plugins with dependency resolution
  - Bicep template generation per plugin
  - Provision, deploy and local debug across environments
  - Starlark user tasks
  - Template policies and operation history`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "fx.yaml path (default <project>/.fx/fx.yaml)")
	rootCmd.PersistentFlags().StringVarP(&projectPath, "project", "p", ".", "project folder")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newNewCommand())
	rootCmd.AddCommand(newResourceCommand())
	rootCmd.AddCommand(newCapabilityCommand())
	rootCmd.AddCommand(newProvisionCommand())
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newPreviewCommand())
	rootCmd.AddCommand(newTaskCommand())
	rootCmd.AddCommand(newScaffoldCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPolicyCommand())
	rootCmd.AddCommand(newEnvCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/plugins/builtin"
)

func newEnvCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage environments",
	}
	cmd.AddCommand(newEnvListCommand())
	cmd.AddCommand(newEnvAddCommand())
	return cmd
}

func newEnvListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the environments of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				envs, err := a.core.ListEnvs(a.project)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(a.out, envs)
				}
				for _, env := range envs {
					fmt.Fprintln(a.out, env)
				}
				return nil
			})
		},
	}
}

func newEnvAddCommand() *cobra.Command {
	var (
		subscription  string
		resourceGroup string
		location      string
		configFile    string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an environment",
		Long: `Add an environment with its config file .fx/configs/config.<name>.json.
The Azure target comes from the flags or from a JSON config file.`,
		Example: `  fx env add staging --subscription 00000000-0000-0000-0000-000000000000
  fx env add prod --config-file prod.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := envConfig(configFile, subscription, resourceGroup, location)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.core.CreateEnv(ctx, a.inputs(), args[0], cfg); err != nil {
					return err
				}
				return printResult(a.out, map[string]interface{}{"env": args[0], "config": cfg},
					fmt.Sprintf("Added environment %s", args[0]))
			})
		},
	}

	cmd.Flags().StringVar(&subscription, "subscription", "", "Azure subscription id")
	cmd.Flags().StringVar(&resourceGroup, "resource-group", "", "Azure resource group")
	cmd.Flags().StringVar(&location, "location", "", "Azure location (default "+builtin.DefaultLocation+")")
	cmd.Flags().StringVar(&configFile, "config-file", "", "JSON file with the environment config")

	return cmd
}

// envConfig reads configFile, if any, and sets the azure section from the
// non-empty flag values.
func envConfig(configFile, subscription, resourceGroup, location string) (map[string]interface{}, error) {
	cfg := map[string]interface{}{}
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, engine.NewUserError(engine.SourceCore, engine.ErrCodeReadFile,
				fmt.Sprintf("failed to read %s", configFile)).WithCause(err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, engine.InvalidInputError(fmt.Sprintf("%s is not a JSON object: %v", configFile, err))
		}
	}

	azure, _ := cfg["azure"].(map[string]interface{})
	if azure == nil {
		azure = map[string]interface{}{}
	}
	for key, v := range map[string]string{
		builtin.ConfigSubscriptionID: subscription,
		builtin.ConfigResourceGroup:  resourceGroup,
		builtin.ConfigLocation:       location,
	} {
		if v != "" {
			azure[key] = v
		}
	}
	if len(azure) > 0 {
		cfg["azure"] = azure
	}
	if len(cfg) == 0 {
		return nil, nil
	}
	return cfg, nil
}

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newProvisionCommand() *cobra.Command {
	var (
		env           string
		answers       []string
		configureOnly bool
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision the cloud resources of an environment",
		Long: `Provision runs preProvision, provision and configure over every active
plugin. Outputs are written to .fx/states/state.<env>.json; secret values
go to the encrypted userdata file. State is written even when a plugin
fails, so a later run resumes with what was already created.

With --configure-only just the configure stage runs, against the state of
an earlier provision.`,
		Example: `  fx provision --env dev
  fx provision --env dev --answer sql-admin-name=dbadmin
  fx provision --env dev --configure-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseAnswers(answers)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				in := a.inputs()
				in.EnvName = env
				in.Answers = parsed
				if configureOnly {
					if err := a.core.Configure(ctx, in); err != nil {
						return err
					}
					return printResult(a.out, map[string]string{"env": env, "status": "configured"},
						fmt.Sprintf("Configured environment %s", env))
				}
				if err := a.core.Provision(ctx, in); err != nil {
					return err
				}
				return printResult(a.out, map[string]string{"env": env, "status": "provisioned"},
					fmt.Sprintf("Provisioned environment %s", env))
			})
		},
	}

	cmd.Flags().StringVarP(&env, "env", "e", "", "environment name")
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "question answer as name=value (repeatable)")
	cmd.Flags().BoolVar(&configureOnly, "configure-only", false, "run only the configure stage")
	_ = cmd.MarkFlagRequired("env")

	return cmd
}

func newDeployCommand() *cobra.Command {
	var (
		env     string
		modules []int
		list    bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy project modules to an environment",
		Long: `Deploy runs preDeploy and deploy for each selected module with its hosting
plugin. Without --module every module is deployed, together with plugins
that deploy without hosting a module. Unchanged build output is skipped.`,
		Example: `  fx deploy --env dev
  fx deploy --env dev --module 0
  fx deploy --list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if list {
					deployable, err := a.core.DeployableModules(a.project)
					if err != nil {
						return err
					}
					return printResult(a.out, deployable, fmt.Sprintf("Deployable modules: %v", deployable))
				}
				in := a.inputs()
				in.EnvName = env
				in.Modules = modules
				if err := a.core.Deploy(ctx, in); err != nil {
					return err
				}
				return printResult(a.out, map[string]interface{}{"env": env, "modules": modules, "status": "deployed"},
					fmt.Sprintf("Deployed to environment %s", env))
			})
		},
	}

	cmd.Flags().StringVarP(&env, "env", "e", "", "environment name")
	cmd.Flags().IntSliceVarP(&modules, "module", "m", nil, "module indices to deploy")
	cmd.Flags().BoolVar(&list, "list", false, "list the deployable modules")

	return cmd
}

package commands

import (
	"context"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the project settings and templates",
		Long: `Validate the project settings against their schema and evaluate the
template policies against the generated Bicep templates.

Policies are the bundled ones plus the .rego files under the policy paths
of fx.yaml (default .fx/policies). With --watch the policies are reloaded
and the project validated again whenever a policy file changes, until
interrupted.`,
		Example: `  fx validate
  fx validate --project ./todo-list
  fx validate --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if !watch {
					return runValidate(ctx, a)
				}
				pe, err := policyEngine(a)
				if err != nil {
					return err
				}
				if err := runValidate(ctx, a); err != nil {
					PrintError(cmd.ErrOrStderr(), err)
				}
				loader, err := pe.Watch(ctx, a.policyPaths, func() {
					if err := togglePolicies(pe, &a.cfg.Policy); err != nil {
						a.logger.Warn().Err(err).Msg("failed to apply policy toggles")
					}
					if err := runValidate(ctx, a); err != nil {
						PrintError(cmd.ErrOrStderr(), err)
					}
				})
				if err != nil {
					return err
				}
				defer func() {
					if err := loader.StopWatching(); err != nil {
						a.logger.Debug().Err(err).Msg("failed to stop policy watcher")
					}
				}()
				a.logger.Info().Strs("paths", a.policyPaths).Msg("watching policies")
				<-ctx.Done()
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "validate again when a policy file changes")

	return cmd
}

func runValidate(ctx context.Context, a *app) error {
	if err := a.core.Validate(ctx, a.project); err != nil {
		return err
	}
	return printResult(a.out, map[string]bool{"valid": true}, "Project is valid")
}

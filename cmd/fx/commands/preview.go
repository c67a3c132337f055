package commands

import (
	"context"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/project"
)

func newPreviewCommand() *cobra.Command {
	var (
		watch    bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Prepare local debugging",
		Long: `Preview runs the local debug stages of every active plugin and writes
.fx/configs/localSettings.json. The local environment is created on
first use. With --watch the stages run again whenever the project
settings change, until interrupted.`,
		Example: `  fx preview
  fx preview --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := runPreview(ctx, a); err != nil {
					return err
				}
				if !watch {
					return nil
				}
				w := project.NewSettingsWatcher(a.project, debounce, a.logger)
				a.logger.Info().Str("project", a.project).Msg("watching project settings")
				return w.Watch(ctx, func(ctx context.Context, _ *engine.ProjectSettings) {
					if err := runPreview(ctx, a); err != nil {
						PrintError(cmd.ErrOrStderr(), err)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "run again when the project settings change")
	cmd.Flags().DurationVar(&debounce, "debounce", project.DefaultDebounce, "delay before reacting to a change")

	return cmd
}

func runPreview(ctx context.Context, a *app) error {
	if err := a.core.LocalDebug(ctx, a.inputs()); err != nil {
		return err
	}
	local, err := project.LoadLocalSettings(a.project)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(a.out, local)
	}
	ids := make([]string, 0, len(local))
	for id := range local {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		printSection(a.out, id, local[id])
	}
	return nil
}

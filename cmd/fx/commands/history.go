package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/thomyg/TeamsFx/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		name   string
		env    string
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the operations run on the project",
		Long: `History lists recorded operations, newest first, from the SQLite
database configured in fx.yaml (default .fx/history.db).`,
		Example: `  fx history
  fx history --status failed --limit 5
  fx history show <operation-id>
  fx history prune --older-than 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ops, err := a.core.History(ctx, a.project, stores.OperationFilter{
					Name:   name,
					Env:    env,
					Status: stores.OperationStatus(status),
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(a.out, ops)
				}
				rows := make([][]string, 0, len(ops))
				for _, op := range ops {
					rows = append(rows, []string{
						op.ID,
						op.Name,
						op.Env,
						styleStatus(string(op.Status)),
						op.StartedAt.Local().Format(time.DateTime),
						op.Duration.Round(time.Millisecond).String(),
						op.ErrorCode,
					})
				}
				printTable(a.out, []string{"ID", "OPERATION", "ENV", "STATUS", "STARTED", "DURATION", "ERROR"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "filter by operation name")
	cmd.Flags().StringVarP(&env, "env", "e", "", "filter by environment")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (running, succeeded, failed, cancelled)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of operations")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <operation-id>",
		Short: "Show the plugin calls of an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				stages, err := a.core.Stages(ctx, a.project, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(a.out, stages)
				}
				rows := make([][]string, 0, len(stages))
				for _, s := range stages {
					rows = append(rows, []string{
						s.Plugin,
						s.Stage,
						styleStatus(string(s.Status)),
						s.Duration.Round(time.Millisecond).String(),
						s.Error,
					})
				}
				printTable(a.out, []string{"PLUGIN", "STAGE", "STATUS", "DURATION", "ERROR"}, rows)
				return nil
			})
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.core.PruneHistory(ctx, a.project, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				return printResult(a.out, map[string]int64{"deleted": n}, fmt.Sprintf("Deleted %d operations", n))
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the operations to delete")
	return cmd
}

func styleStatus(status string) string {
	switch strings.ToLower(status) {
	case "succeeded":
		return successStyle.Render(status)
	case "failed":
		return errorStyle.Render(status)
	case "cancelled":
		return hintStyle.Render(status)
	}
	return status
}

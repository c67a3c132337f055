package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thomyg/TeamsFx/pkg/config"
	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/plugins/builtin"
)

// taskNamespaces maps short namespaces to plugin ids.
var taskNamespaces = map[string]string{
	"script":   builtin.Script,
	"solution": engine.SolutionNamespace,
}

func newTaskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Run user tasks",
	}
	cmd.AddCommand(newTaskRunCommand())
	return cmd
}

func newTaskRunCommand() *cobra.Command {
	var (
		env    string
		params []string
	)

	cmd := &cobra.Command{
		Use:   "run <namespace> <method>",
		Short: "Run a user task",
		Long: `Run a method of a plugin. The script namespace runs the Starlark file
.fx/tasks/<method>.star with method, params, app, env, state and local
bound as globals; a global dict named outputs is saved to the env state.`,
		Example: `  # Run .fx/tasks/seed.star against dev
  fx task run script seed --env dev --param rows=10

  # Add a resource through the solution namespace
  fx task run solution addResource --param resource=fx-resource-azure-sql`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseAnswers(params)
			if err != nil {
				return err
			}
			namespace := args[0]
			if id, ok := taskNamespaces[strings.ToLower(namespace)]; ok {
				namespace = id
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				in := a.inputs()
				in.EnvName = env
				res, err := a.core.ExecuteUserTask(ctx, in, engine.Func{
					Namespace: namespace,
					Method:    args[1],
					Params:    parsed,
				})
				if err != nil {
					return err
				}
				return printTaskResult(a, args[1], res)
			})
		},
	}

	cmd.Flags().StringVarP(&env, "env", "e", "", "environment the task runs in")
	cmd.Flags().StringArrayVar(&params, "param", nil, "task parameter as name=value (repeatable)")

	return cmd
}

func printTaskResult(a *app, method string, res interface{}) error {
	if jsonOutput {
		return printJSON(a.out, res)
	}
	sr, ok := res.(*config.StarlarkResult)
	if !ok {
		if res != nil {
			fmt.Fprintln(a.out, formatValue(res))
		}
		return printResult(a.out, nil, fmt.Sprintf("Task %s done", method))
	}
	for _, line := range sr.Printed {
		fmt.Fprintln(a.out, mutedStyle.Render("│ ")+line)
	}
	if len(sr.Output) > 0 {
		printSection(a.out, "outputs", sr.Output)
	}
	return printResult(a.out, nil, fmt.Sprintf("Task %s done in %s", method, sr.ExecutionTime))
}

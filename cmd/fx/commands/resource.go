package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/plugins/builtin"
)

// resourceAliases maps short resource names to plugin ids.
var resourceAliases = map[string]string{
	"frontend":    builtin.FrontendHosting,
	"webapp":      builtin.WebApp,
	"function":    builtin.Function,
	"sql":         builtin.SQL,
	"apim":        builtin.APIM,
	"keyvault":    builtin.KeyVault,
	"simpleauth":  builtin.SimpleAuth,
	"spfx":        builtin.SPFx,
	"local-debug": builtin.LocalDebug,
	"bot":         builtin.Bot,
	"aad":         builtin.AAD,
	"sso":         builtin.AAD,
}

func pluginID(name string) string {
	if id, ok := resourceAliases[strings.ToLower(name)]; ok {
		return id
	}
	return name
}

func newResourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resource",
		Short: "Manage the cloud resources of the project",
	}
	cmd.AddCommand(newResourceAddCommand())
	cmd.AddCommand(newResourceShowCommand())
	cmd.AddCommand(newResourceListCommand())
	cmd.AddCommand(newResourceQuestionsCommand())
	return cmd
}

func newResourceAddCommand() *cobra.Command {
	var (
		module  int
		answers []string
	)

	cmd := &cobra.Command{
		Use:   "add <resource>",
		Short: "Add a resource and its dependencies",
		Long: `Add a resource plugin to the project. Plugins it depends on are added
too and the Bicep templates under templates/azure are regenerated.

Resources: frontend, webapp, function, sql, apim, keyvault, simpleauth,
spfx, local-debug, or a plugin id.`,
		Example: `  # Add Azure SQL; Azure Functions is added with it
  fx resource add sql

  # Host module 0 on App Service
  fx resource add webapp --module 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseAnswers(answers)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				in := a.inputs()
				in.Resource = pluginID(args[0])
				in.Answers = parsed
				if cmd.Flags().Changed("module") {
					in.Module = &module
				}
				settings, err := a.core.AddResource(ctx, in)
				if err != nil {
					return err
				}
				return printResult(a.out, settings.Solution,
					fmt.Sprintf("Added %s; active plugins: %s", in.Resource, strings.Join(settings.Solution.ActiveResourcePlugins, ", ")))
			})
		},
	}

	cmd.Flags().IntVar(&module, "module", 0, "module hosted by the resource")
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "question answer as name=value (repeatable)")

	return cmd
}

func newResourceShowCommand() *cobra.Command {
	var (
		env   string
		query string
	)

	cmd := &cobra.Command{
		Use:   "show <resource>",
		Short: "Show the provisioned state of a resource",
		Long: `Show the state of one resource in an environment. Secret values are
shown as placeholders. --query selects a value with a gjson path.`,
		Example: `  fx resource show function --env dev
  fx resource show sql --env dev --query sqlEndpoint`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				id := pluginID(args[0])
				state, err := a.core.EnvState(a.project, env)
				if err != nil {
					return err
				}
				entry, ok := state[id]
				if !ok {
					return engine.NewUserError(engine.SourceCore, engine.ErrCodeInvalidInput,
						fmt.Sprintf("resource %s is not provisioned in environment %s", id, env)).
						WithHint("run 'fx resource list --env " + env + "'")
				}
				if query != "" {
					return printQuery(a, entry, query)
				}
				if jsonOutput {
					return printJSON(a.out, entry)
				}
				m, _ := entry.(map[string]interface{})
				printSection(a.out, id, m)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&env, "env", "e", "", "environment name")
	cmd.Flags().StringVarP(&query, "query", "q", "", "gjson path selecting a value")

	return cmd
}

func printQuery(a *app, entry interface{}, query string) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	res := gjson.GetBytes(data, query)
	if !res.Exists() {
		return engine.InvalidInputError(fmt.Sprintf("query %q matches nothing", query))
	}
	if jsonOutput || res.IsObject() || res.IsArray() {
		_, err = fmt.Fprintln(a.out, res.Raw)
		return err
	}
	_, err = fmt.Fprintln(a.out, res.String())
	return err
}

func newResourceListCommand() *cobra.Command {
	var env string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the provisioned resources of an environment",
		Example: `  fx resource list --env dev`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				state, err := a.core.EnvState(a.project, env)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(a.out, state)
				}
				ids := make([]string, 0, len(state))
				for id := range state {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				rows := make([][]string, 0, len(ids))
				for _, id := range ids {
					m, _ := state[id].(map[string]interface{})
					rows = append(rows, []string{
						id,
						stateString(m, builtin.KeyResourceName),
						stateString(m, builtin.KeyEndpoint),
					})
				}
				printTable(a.out, []string{"PLUGIN", "NAME", "ENDPOINT"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&env, "env", "e", "", "environment name")

	return cmd
}

func newResourceQuestionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions [resource]",
		Short: "Show the questions asked when adding a resource",
		Long: `List the questions of 'fx resource add': the module and resource selects
and, when a resource is given, that resource's own questions. Answer them
with --module and --answer name=value.`,
		Example: `  fx resource questions
  fx resource questions sql --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				in := a.inputs()
				if len(args) == 1 {
					in.Resource = pluginID(args[0])
				}
				node, err := a.core.QuestionsForAddResource(ctx, in)
				if err != nil {
					return err
				}
				if in.Resource != "" {
					if q, ok := node.Find(engine.QuestionResource); ok && !hasOption(q, in.Resource) {
						return engine.InvalidInputError(fmt.Sprintf("%s is not a resource", in.Resource))
					}
				}
				if jsonOutput {
					return printJSON(a.out, node)
				}

				var rows [][]string
				node.Walk(func(n *engine.QTreeNode) {
					q := n.Data
					if q.Type == engine.QuestionGroup {
						return
					}
					ids := make([]string, 0, len(q.StaticOptions))
					for _, o := range q.StaticOptions {
						ids = append(ids, o.ID)
					}
					options := strings.Join(ids, ", ")
					if options == "" {
						options = mutedStyle.Render("-")
					}
					rows = append(rows, []string{q.Name, string(q.Type), options, formatValue(q.Default)})
				})
				printTable(a.out, []string{"QUESTION", "TYPE", "OPTIONS", "DEFAULT"}, rows)
				return nil
			})
		},
	}
	return cmd
}

func hasOption(q *engine.Question, id string) bool {
	for _, o := range q.StaticOptions {
		if o.ID == id {
			return true
		}
	}
	return false
}

func stateString(m map[string]interface{}, key string) string {
	v, ok := m[key].(string)
	if !ok || v == "" {
		return mutedStyle.Render("-")
	}
	return v
}

// parseAnswers turns name=value pairs into question answers. Values with
// commas become lists.
func parseAnswers(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, engine.InvalidInputError(fmt.Sprintf("answer %q must be name=value", p))
		}
		if strings.Contains(value, ",") {
			out[name] = strings.Split(value, ",")
			continue
		}
		out[name] = value
	}
	return out, nil
}

package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/policy"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the template policies",
		Long: `Policy lists the policies evaluated against generated templates: the
bundled ones plus those under the policy paths of fx.yaml. Policies are
switched on or off by name with policy.enable and policy.disable.`,
	}

	cmd.AddCommand(newPolicyListCommand())
	cmd.AddCommand(newPolicyShowCommand())
	return cmd
}

// policyEngine returns the app's policy engine or an error when fx.yaml
// turns policies off.
func policyEngine(a *app) (*policy.Engine, error) {
	if a.policy == nil {
		return nil, engine.InvalidInputError("policies are disabled in fx.yaml")
	}
	return a.policy, nil
}

func newPolicyListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the loaded policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				pe, err := policyEngine(a)
				if err != nil {
					return err
				}
				policies := pe.ListPolicies()
				if jsonOutput {
					return printJSON(a.out, policies)
				}
				rows := make([][]string, 0, len(policies))
				for _, p := range policies {
					source := "builtin"
					if !p.Builtin {
						source = fmt.Sprint(p.Metadata["source"])
						if b, ok := p.Metadata["bundle"]; ok {
							source = fmt.Sprint(b)
						}
					}
					rows = append(rows, []string{p.Name, string(p.Severity), strconv.FormatBool(p.Enabled), source})
				}
				printTable(a.out, []string{"NAME", "SEVERITY", "ENABLED", "SOURCE"}, rows)
				return nil
			})
		},
	}
}

func newPolicyShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print the Rego of a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				pe, err := policyEngine(a)
				if err != nil {
					return err
				}
				p, err := pe.GetPolicy(args[0])
				if err != nil {
					return engine.InvalidInputError(err.Error())
				}
				if jsonOutput {
					return printJSON(a.out, p)
				}
				if p.Description != "" {
					fmt.Fprintf(a.out, "# %s\n", p.Description)
				}
				fmt.Fprint(a.out, p.Rego)
				return nil
			})
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/guard"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/security"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/tui"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the active security rule set",
	}
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesCheckCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			rs, err := security.LoadRuleset(cfg.Security)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(rs.Rules())
			}
			fmt.Println(tui.RenderRules(rs.Rules()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the rules as JSON")
	return cmd
}

// rulesCheckCmd classifies a command without auditing it, for rule
// debugging.
func rulesCheckCmd() *cobra.Command {
	var role, workDir string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check [command]",
		Short: "Show which rules a command matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			classifier, err := security.NewClassifier(cfg.Security, logger)
			if err != nil {
				return err
			}

			result, err := classifier.Classify(cmd.Context(), args[0], cmdContext(role, workDir))
			if err != nil && result == nil {
				return err
			}
			out := &guard.CheckOutcome{
				Command:  args[0],
				Result:   result,
				Decision: security.Decide(result),
			}
			if asJSON {
				return printJSON(out)
			}
			fmt.Println(tui.RenderCheck(args[0], out))
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "user role for context-sensitive rules")
	cmd.Flags().StringVar(&workDir, "cwd", "", "working directory for context-sensitive rules")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON outcome")
	return cmd
}

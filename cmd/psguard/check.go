package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/tui"
)

func checkCmd() *cobra.Command {
	var role, workDir string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check [command]",
		Short: "Classify a command without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			e, err := buildEnv(cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			out, err := e.guard.Check(cmd.Context(), args[0], cmdContext(role, workDir))
			if err != nil && out == nil {
				return err
			}
			if asJSON {
				return printJSON(out)
			}
			fmt.Println(tui.RenderCheck(args[0], out))
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "user role recorded with the request")
	cmd.Flags().StringVar(&workDir, "cwd", "", "working directory the command would run in")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON outcome")
	return cmd
}

func scanCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan [file]",
		Short: "Statically scan a script for dangerous constructs",
		Long:  "Scans a script file (or stdin when no file is given) and reports findings.\nExits non-zero when the script contains a high or critical finding.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var script []byte
			var err error
			if len(args) == 1 {
				script, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read script: %w", err)
				}
			} else {
				script, err = io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}

			cfg := loadConfig()
			e, err := buildEnv(cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			out, err := e.guard.Scan(cmd.Context(), string(script))
			if err != nil {
				return err
			}
			if asJSON {
				if err := printJSON(out); err != nil {
					return err
				}
			} else {
				fmt.Println(tui.RenderScan(out))
			}
			if !out.Safe {
				return fmt.Errorf("script failed the scan with %d findings", len(out.Issues))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON outcome")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/guard"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/tui"
)

func runCmd() *cobra.Command {
	var (
		role, workDir string
		timeoutSec    int
		asJSON        bool
		confirmToken  string
		denyToken     string
	)

	cmd := &cobra.Command{
		Use:   "run [command]",
		Short: "Validate a command and run it in the sandbox",
		Long: "Runs a command through classification first. Blocked commands never\n" +
			"run; commands that need confirmation print a token to pass back via\n" +
			"--confirm once the user approves, or --deny to discard.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			e, err := buildEnv(cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := guard.ExecuteOptions{TimeoutSeconds: timeoutSec}

			switch {
			case denyToken != "":
				if err := e.guard.Deny(ctx, denyToken); err != nil {
					return err
				}
				fmt.Println("denied, the command was discarded")
				return nil

			case confirmToken != "":
				out, err := e.guard.Confirm(ctx, confirmToken, opts)
				if err != nil {
					return err
				}
				if rerr := renderRun(out.Command, out, asJSON); rerr != nil {
					return rerr
				}
				return runOutcomeErr(out)

			default:
				if len(args) != 1 {
					return fmt.Errorf("provide a command to run, or --confirm/--deny with a token")
				}
				out, err := e.guard.Execute(ctx, args[0], cmdContext(role, workDir), opts)
				if err != nil && out == nil {
					return err
				}
				if rerr := renderRun(args[0], out, asJSON); rerr != nil {
					return rerr
				}
				if err != nil {
					return err
				}
				return runOutcomeErr(out)
			}
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "user role recorded with the request")
	cmd.Flags().StringVar(&workDir, "cwd", "", "working directory the command runs in")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "execution timeout in seconds (0 = configured default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON outcome")
	cmd.Flags().StringVar(&confirmToken, "confirm", "", "confirm a pending command by token and run it")
	cmd.Flags().StringVar(&denyToken, "deny", "", "deny a pending command by token")
	return cmd
}

func renderRun(command string, out *guard.ExecuteOutcome, asJSON bool) error {
	if asJSON {
		return printJSON(out)
	}
	fmt.Println(tui.RenderCheck(command, &out.CheckOutcome))
	if out.Execution != nil {
		fmt.Println(tui.RenderExecution(out.Execution))
	}
	return nil
}

// runOutcomeErr maps a rendered outcome onto the process exit code.
func runOutcomeErr(out *guard.ExecuteOutcome) error {
	if out.Decision == domain.DecisionReject {
		return fmt.Errorf("command blocked")
	}
	if out.Execution == nil {
		return nil
	}
	switch {
	case out.Execution.TimedOut:
		return fmt.Errorf("execution timed out")
	case out.Execution.ReturnCode != 0:
		return fmt.Errorf("command exited with %d", out.Execution.ReturnCode)
	}
	return nil
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/sandbox"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/security"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your psguard installation",
		Long: `Verifies that psguard's configuration, rule packs, sandbox backend, and
audit database are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("psguard Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'psguard init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}

			if cfg == nil {
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}

			// 3. Rule packs load
			if ruleset, err := security.LoadRuleset(cfg.Security); err != nil {
				printFail("Rule packs", err.Error())
				failed++
			} else {
				printPass("Rule packs", fmt.Sprintf("%d rules loaded", len(ruleset.Rules())))
				passed++
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			// 4. Sandbox backend reachable
			if cfg.Sandbox.Enabled {
				docker := sandbox.NewDockerBackend(cfg.Sandbox, logger)
				if err := docker.Available(ctx); err != nil {
					if cfg.Sandbox.AllowLocalFallback {
						printWarn("Docker sandbox", fmt.Sprintf("unreachable, local fallback will be used: %v", err))
						warned++
					} else {
						printFail("Docker sandbox", err.Error())
						failed++
					}
				} else {
					printPass("Docker sandbox", fmt.Sprintf("daemon up, image %s", cfg.Sandbox.Image))
					passed++
				}
			} else {
				printWarn("Docker sandbox", "disabled, commands run on the host")
				warned++
			}

			// 5. Host shell (used when the sandbox is disabled or falls back)
			if !cfg.Sandbox.Enabled || cfg.Sandbox.AllowLocalFallback {
				local := sandbox.NewLocalBackend(cfg.Sandbox, logger)
				if err := local.Available(ctx); err != nil {
					printFail("Host shell", err.Error())
					failed++
				} else {
					printPass("Host shell", cfg.Sandbox.Shell)
					passed++
				}
			}

			// 6. Audit database writable
			if cfg.Audit.Enabled {
				if err := checkDatabase(cfg.Audit.DBPath); err != nil {
					printFail("Audit database", err.Error())
					failed++
				} else {
					printPass("Audit database", cfg.Audit.DBPath)
					passed++
				}
			} else {
				printWarn("Audit database", "auditing disabled")
				warned++
			}

			// 7. API port
			if cfg.Server.Enabled {
				if err := checkPort(cfg.Server.Port); err != nil {
					printWarn("API port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
					warned++
				} else {
					printPass("API port", fmt.Sprintf(":%d available", cfg.Server.Port))
					passed++
				}
				if cfg.Server.APIKey == "" && cfg.Server.Host != "127.0.0.1" && cfg.Server.Host != "localhost" {
					printWarn("API key", fmt.Sprintf("server listens on %s without an API key", cfg.Server.Host))
					warned++
				}
			}

			// 8. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running psguard.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\npsguard should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! psguard is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/audit"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/tui"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	cmd.AddCommand(auditTailCmd())
	return cmd
}

func auditTailCmd() *cobra.Command {
	var limit int
	var correlation string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if !cfg.Audit.Enabled {
				return fmt.Errorf("auditing is disabled in the config")
			}

			store, err := audit.NewSQLiteStore(cfg.Audit.DBPath, logger)
			if err != nil {
				return fmt.Errorf("audit store: %w", err)
			}
			defer store.Close()

			var events []domain.AuditEvent
			if correlation != "" {
				events, err = store.ByCorrelation(cmd.Context(), correlation)
			} else {
				events, err = store.Tail(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(events)
			}
			fmt.Println(tui.RenderAuditTrail(events))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of events to show")
	cmd.Flags().StringVar(&correlation, "correlation", "", "show every event for one correlation ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the events as JSON")
	return cmd
}

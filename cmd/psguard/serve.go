package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/audit"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Serves the validation, scan, execution and audit endpoints over HTTP.\nPress Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(parseLevel(cfg.General.LogLevel), cfg.General.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := buildEnv(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.store != nil && cfg.Audit.RetentionDays > 0 {
		go purgeLoop(ctx, e.store, cfg.Audit.RetentionDays)
	}

	// SIGHUP swaps in a fresh rule set without restarting.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			fresh, err := config.Load(cfgPath)
			if err != nil {
				logger.Error("rule reload failed", "err", err)
				continue
			}
			if err := e.guard.Reload(fresh.Security); err != nil {
				logger.Error("rule reload failed", "err", err)
				continue
			}
			logger.Info("rules reloaded", "rules", len(e.guard.Rules()))
		}
	}()

	var trail server.Trail
	if e.store != nil {
		trail = e.store
	}

	srv := server.New(server.Options{
		Config:  cfg.Server,
		Guard:   e.guard,
		Trail:   trail,
		Logger:  logger,
		Metrics: cfg.Metrics.Enabled,
		Version: version,
	})
	return srv.Start(ctx)
}

// purgeLoop enforces the audit retention window, once at startup and then
// daily.
func purgeLoop(ctx context.Context, store *audit.SQLiteStore, days int) {
	tick := time.NewTicker(24 * time.Hour)
	defer tick.Stop()
	for {
		if _, err := store.Purge(ctx, days); err != nil && ctx.Err() == nil {
			logger.Warn("audit purge failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

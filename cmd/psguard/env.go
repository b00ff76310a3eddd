package main

import (
	"fmt"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/audit"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/guard"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/sandbox"
)

// env bundles the wired subsystem for one CLI invocation.
type env struct {
	cfg      *config.Config
	guard    *guard.Guard
	store    *audit.SQLiteStore // nil when auditing is disabled
	recorder *audit.Recorder    // nil when auditing is disabled
}

func buildEnv(cfg *config.Config) (*env, error) {
	e := &env{cfg: cfg}

	if cfg.Audit.Enabled {
		store, err := audit.NewSQLiteStore(cfg.Audit.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		e.store = store
		e.recorder = audit.NewRecorder(store, cfg.Audit.QueueSize, logger)
	}

	var sink domain.AuditSink
	if e.recorder != nil {
		sink = e.recorder
	}

	orch := sandbox.New(cfg.Sandbox, logger)
	g, err := guard.New(cfg, orch, sink, logger)
	if err != nil {
		orch.Close()
		e.Close()
		return nil, err
	}
	e.guard = g
	return e, nil
}

// Close tears down in dependency order: the guard first so every pending
// audit event is recorded, then the recorder flush, then the store.
func (e *env) Close() {
	if e.guard != nil {
		e.guard.Close()
	}
	if e.recorder != nil {
		e.recorder.Close()
	}
	if e.store != nil {
		e.store.Close()
	}
}

package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	store, err := NewSQLiteStore(dbPath, testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func validationEvent(corr, command string, risk domain.RiskLevel, decision domain.Decision) domain.AuditEvent {
	return domain.AuditEvent{
		CorrelationID: corr,
		Kind:          domain.AuditValidation,
		Command:       command,
		UserRole:      "operator",
		Decision:      decision,
		Validation: &domain.ValidationResult{
			IsValid:   decision != domain.DecisionReject,
			RiskLevel: risk,
		},
	}
}

func TestStoreRecordAndTail(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	events := []domain.AuditEvent{
		validationEvent("corr-1", "Get-Process", domain.RiskSafe, domain.DecisionProceed),
		validationEvent("corr-2", "Remove-Item -Recurse -Force C:\\", domain.RiskCritical, domain.DecisionReject),
		{
			CorrelationID: "corr-1",
			Kind:          domain.AuditExecution,
			Command:       "Get-Process",
			Execution: &domain.SandboxResult{
				Stdout:      "processes...",
				ReturnCode:  0,
				SandboxUsed: true,
			},
		},
	}
	for _, ev := range events {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.Tail(ctx, 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Tail returned %d events, want 3", len(got))
	}

	first := got[0]
	if first.Kind != domain.AuditValidation {
		t.Errorf("kind = %s, want %s", first.Kind, domain.AuditValidation)
	}
	if first.Command != "Get-Process" {
		t.Errorf("command = %q", first.Command)
	}
	if first.Decision != domain.DecisionProceed {
		t.Errorf("decision = %s", first.Decision)
	}
	if first.Validation == nil || first.Validation.RiskLevel != domain.RiskSafe {
		t.Errorf("validation did not round trip: %+v", first.Validation)
	}
	if first.Timestamp.IsZero() {
		t.Error("timestamp should be filled on write")
	}

	last := got[2]
	if last.Kind != domain.AuditExecution {
		t.Errorf("kind = %s, want %s", last.Kind, domain.AuditExecution)
	}
	if last.Execution == nil || last.Execution.ReturnCode != 0 || !last.Execution.SandboxUsed {
		t.Errorf("execution did not round trip: %+v", last.Execution)
	}
}

func TestStoreTailLimit(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev := validationEvent("corr", "Get-Date", domain.RiskSafe, domain.DecisionProceed)
		ev.Detail = string(rune('a' + i))
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.Tail(ctx, 2)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Tail returned %d events, want 2", len(got))
	}
	// Oldest first, so the last two recorded are "d" then "e".
	if got[0].Detail != "d" || got[1].Detail != "e" {
		t.Errorf("Tail order = %q, %q, want d, e", got[0].Detail, got[1].Detail)
	}
}

func TestStoreByCorrelation(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, validationEvent("req-1", "Get-Process", domain.RiskSafe, domain.DecisionProceed)); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, validationEvent("req-2", "Stop-Computer", domain.RiskHigh, domain.DecisionAwaitConfirmation)); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, domain.AuditEvent{
		CorrelationID: "req-1",
		Kind:          domain.AuditExecution,
		Command:       "Get-Process",
	}); err != nil {
		t.Fatal(err)
	}

	got, err := store.ByCorrelation(ctx, "req-1")
	if err != nil {
		t.Fatalf("ByCorrelation: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events for req-1, want 2", len(got))
	}
	if got[0].Kind != domain.AuditValidation || got[1].Kind != domain.AuditExecution {
		t.Errorf("trail order wrong: %s, %s", got[0].Kind, got[1].Kind)
	}
}

func TestStorePurge(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	old := validationEvent("old", "Get-Process", domain.RiskSafe, domain.DecisionProceed)
	old.Timestamp = time.Now().AddDate(0, 0, -120)
	if err := store.Record(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, validationEvent("fresh", "Get-Date", domain.RiskSafe, domain.DecisionProceed)); err != nil {
		t.Fatal(err)
	}

	deleted, err := store.Purge(ctx, 90)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Purge deleted %d rows, want 1", deleted)
	}

	got, err := store.Tail(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].CorrelationID != "fresh" {
		t.Errorf("remaining events = %+v, want only the fresh one", got)
	}
}

func TestStorePurgeDisabled(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, validationEvent("x", "Get-Date", domain.RiskSafe, domain.DecisionProceed)); err != nil {
		t.Fatal(err)
	}
	deleted, err := store.Purge(ctx, 0)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if deleted != 0 {
		t.Errorf("retention 0 must not delete, got %d", deleted)
	}
}

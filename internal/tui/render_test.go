package tui_test

import (
	"strings"
	"testing"
	"time"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/guard"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/tui"
)

func TestRenderCheckBlocked(t *testing.T) {
	out := &guard.CheckOutcome{
		CorrelationID: "c1",
		Decision:      domain.DecisionReject,
		Result: &domain.ValidationResult{
			IsValid:      false,
			RiskLevel:    domain.RiskCritical,
			MatchedRules: []string{"recursive-force-delete"},
			Warnings:     []string{"blocked: recursive forced deletion"},
			BlockReason:  "recursive forced deletion",
		},
	}
	got := tui.RenderCheck("Remove-Item -Recurse -Force C:\\", out)

	for _, want := range []string{"BLOCKED", "CRITICAL", "recursive-force-delete", "recursive forced deletion"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRenderCheckConfirmationShowsToken(t *testing.T) {
	out := &guard.CheckOutcome{
		CorrelationID: "c2",
		Decision:      domain.DecisionAwaitConfirmation,
		Token:         "tok-123",
		Result: &domain.ValidationResult{
			IsValid:              true,
			RiskLevel:            domain.RiskHigh,
			RequiresConfirmation: true,
			MatchedRules:         []string{"system-shutdown"},
		},
	}
	got := tui.RenderCheck("Stop-Computer", out)

	if !strings.Contains(got, "CONFIRMATION REQUIRED") {
		t.Errorf("output missing confirmation banner:\n%s", got)
	}
	if !strings.Contains(got, "tok-123") {
		t.Errorf("output missing token:\n%s", got)
	}
}

func TestRenderCheckAllowed(t *testing.T) {
	out := &guard.CheckOutcome{
		Decision: domain.DecisionProceed,
		Result:   &domain.ValidationResult{IsValid: true, RiskLevel: domain.RiskSafe},
	}
	got := tui.RenderCheck("Get-Process", out)

	if !strings.Contains(got, "ALLOWED") || !strings.Contains(got, "SAFE") {
		t.Errorf("output missing allow banner:\n%s", got)
	}
}

func TestRenderScan(t *testing.T) {
	out := &guard.ScanOutcome{
		Safe: false,
		Issues: []domain.SecurityIssue{
			{Severity: domain.RiskHigh, Message: "Path traversal sequence", LineNumber: 3, CodeSnippet: "cat ../../etc/passwd"},
			{Severity: domain.RiskMedium, Message: "Active network command", LineNumber: 7},
		},
	}
	got := tui.RenderScan(out)

	for _, want := range []string{"SCRIPT UNSAFE", "line 3", "Path traversal sequence", "cat ../../etc/passwd", "line 7"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRenderScanClean(t *testing.T) {
	got := tui.RenderScan(&guard.ScanOutcome{Safe: true})
	if !strings.Contains(got, "SCRIPT OK") {
		t.Errorf("output missing clean banner:\n%s", got)
	}
}

func TestRenderExecution(t *testing.T) {
	got := tui.RenderExecution(&domain.SandboxResult{
		Stdout:        "hello\n",
		ReturnCode:    0,
		ExecutionTime: 0.42,
		SandboxUsed:   true,
	})
	if !strings.Contains(got, "COMPLETED") || !strings.Contains(got, "hello") {
		t.Errorf("output missing completion:\n%s", got)
	}

	got = tui.RenderExecution(&domain.SandboxResult{
		ReturnCode:    domain.ReturnCodeTimedOut,
		TimedOut:      true,
		ExecutionTime: 1.0,
		SandboxUsed:   true,
	})
	if !strings.Contains(got, "TIMED OUT") {
		t.Errorf("output missing timeout banner:\n%s", got)
	}

	got = tui.RenderExecution(&domain.SandboxResult{
		Stdout:      "partial",
		ReturnCode:  0,
		SandboxUsed: false,
		Truncated:   true,
	})
	if !strings.Contains(got, "no sandbox isolation") || !strings.Contains(got, "truncated") {
		t.Errorf("output missing host/truncation notices:\n%s", got)
	}
}

func TestRenderRules(t *testing.T) {
	rules := []domain.SecurityRule{
		{Name: "recursive-force-delete", Action: domain.ActionBlock, RiskLevel: domain.RiskCritical, Description: "recursive forced deletion"},
		{Category: "service-control", Action: domain.ActionConfirm, RiskLevel: domain.RiskMedium},
	}
	got := tui.RenderRules(rules)

	for _, want := range []string{"2 active rules", "recursive-force-delete", "service-control", "block", "confirm"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRenderAuditTrail(t *testing.T) {
	events := []domain.AuditEvent{
		{
			Timestamp: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
			Kind:      domain.AuditValidation,
			Decision:  domain.DecisionReject,
			Command:   "Format-Volume C",
		},
	}
	got := tui.RenderAuditTrail(events)

	for _, want := range []string{"2026-03-01 10:30:00", "validation", "reject", "Format-Volume C"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	if got := tui.RenderAuditTrail(nil); !strings.Contains(got, "no audit events") {
		t.Errorf("empty trail output:\n%s", got)
	}
}

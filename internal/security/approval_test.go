package security

import (
	"errors"
	"testing"
	"time"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

func pendingResult() *domain.ValidationResult {
	return &domain.ValidationResult{
		IsValid:              true,
		RiskLevel:            domain.RiskHigh,
		MatchedRules:         []string{"system-shutdown"},
		RequiresConfirmation: true,
		Warnings:             []string{"Shuts down or restarts the machine"},
	}
}

func TestApprovals_CreateTakeRoundTrip(t *testing.T) {
	a := NewApprovals(time.Minute)

	token := a.Create("Stop-Computer", nil, pendingResult(), "corr-1")
	if token == "" {
		t.Fatal("expected a token")
	}
	if a.Len() != 1 {
		t.Fatalf("expected one pending approval, got %d", a.Len())
	}

	pa, err := a.Take(token)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if pa.Command != "Stop-Computer" || pa.CorrelationID != "corr-1" {
		t.Fatalf("unexpected pending approval: %+v", pa)
	}
	if a.Len() != 0 {
		t.Fatal("take must consume the token")
	}
}

func TestApprovals_TokenIsSingleUse(t *testing.T) {
	a := NewApprovals(time.Minute)
	token := a.Create("Stop-Computer", nil, pendingResult(), "corr-1")

	if _, err := a.Take(token); err != nil {
		t.Fatalf("first take: %v", err)
	}
	if _, err := a.Take(token); !errors.Is(err, domain.ErrUnknownConfirmation) {
		t.Fatalf("second take should fail with ErrUnknownConfirmation, got %v", err)
	}
}

func TestApprovals_UnknownToken(t *testing.T) {
	a := NewApprovals(time.Minute)
	if _, err := a.Take("nope"); !errors.Is(err, domain.ErrUnknownConfirmation) {
		t.Fatalf("expected ErrUnknownConfirmation, got %v", err)
	}
}

func TestApprovals_Expiry(t *testing.T) {
	a := NewApprovals(30 * time.Millisecond)
	token := a.Create("Stop-Computer", nil, pendingResult(), "corr-1")

	time.Sleep(80 * time.Millisecond)

	if _, err := a.Take(token); !errors.Is(err, domain.ErrUnknownConfirmation) {
		t.Fatalf("expired token should be unknown, got %v", err)
	}
}

func TestApprovals_SweepRemovesExpired(t *testing.T) {
	a := NewApprovals(30 * time.Millisecond)
	a.Create("one", nil, pendingResult(), "c1")
	a.Create("two", nil, pendingResult(), "c2")

	time.Sleep(80 * time.Millisecond)

	if removed := a.Sweep(); removed != 2 {
		t.Fatalf("expected 2 swept, got %d", removed)
	}
	if a.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", a.Len())
	}
}

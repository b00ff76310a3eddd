package security

import "github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"

// Decide maps a validation result onto the gate decision. The gate is a
// pure function with no I/O so every decision is auditable and testable in
// isolation. An invalid result rejects unconditionally, whatever the risk.
func Decide(result *domain.ValidationResult) domain.Decision {
	switch {
	case result == nil || !result.IsValid:
		return domain.DecisionReject
	case result.RequiresConfirmation:
		return domain.DecisionAwaitConfirmation
	default:
		return domain.DecisionProceed
	}
}

package domain

import (
	"context"
	"time"
)

// AuditKind names the pipeline stage that produced an audit event.
type AuditKind string

const (
	AuditValidation   AuditKind = "validation"
	AuditScan         AuditKind = "scan"
	AuditConfirmation AuditKind = "confirmation"
	AuditExecution    AuditKind = "execution"
)

// AuditEvent is one record sent to the audit sink: one per classification
// decision and one per execution attempt, linked by CorrelationID.
type AuditEvent struct {
	CorrelationID string            `json:"correlation_id"`
	Kind          AuditKind         `json:"kind"`
	Timestamp     time.Time         `json:"timestamp"`
	Command       string            `json:"command,omitempty"`
	UserRole      string            `json:"user_role,omitempty"`
	Decision      Decision          `json:"decision,omitempty"`
	Validation    *ValidationResult `json:"validation,omitempty"`
	Execution     *SandboxResult    `json:"execution,omitempty"`
	Detail        string            `json:"detail,omitempty"`
}

// AuditSink receives structured records of decisions and execution outcomes.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

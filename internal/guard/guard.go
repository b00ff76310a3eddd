// Package guard is the front door of the subsystem. It runs a command
// through classification, the confirmation gate, sandboxed execution and
// auditing, tying the steps of one request together with a correlation ID.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/audit"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/metrics"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/sandbox"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/security"
)

// auditCommandLimit caps how much of a command or script is copied into the
// audit trail.
const auditCommandLimit = 500

// CheckOutcome is the result of validating one command.
type CheckOutcome struct {
	CorrelationID string                   `json:"correlation_id"`
	Command       string                   `json:"command"`
	Result        *domain.ValidationResult `json:"result"`
	Decision      domain.Decision          `json:"decision"`
	Token         string                   `json:"confirmation_token,omitempty"`
}

// ScanOutcome is the result of statically scanning a script.
type ScanOutcome struct {
	CorrelationID string                 `json:"correlation_id"`
	Safe          bool                   `json:"safe"`
	Issues        []domain.SecurityIssue `json:"issues"`
}

// ExecuteOutcome extends a check with the execution that followed it, when
// the decision allowed one.
type ExecuteOutcome struct {
	CheckOutcome
	ExecutionID string                `json:"execution_id,omitempty"`
	Execution   *domain.SandboxResult `json:"execution,omitempty"`
}

// ExecuteOptions tune a single execution.
type ExecuteOptions struct {
	TimeoutSeconds int
	// NoWait submits the execution and returns immediately with its ID.
	NoWait bool
}

type Guard struct {
	classifier *security.Classifier
	scanner    *security.Scanner
	approvals  *security.Approvals
	orch       *sandbox.Orchestrator
	sink       domain.AuditSink
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// New wires the pipeline together. A nil sink disables auditing.
func New(cfg *config.Config, orch *sandbox.Orchestrator, sink domain.AuditSink, logger *slog.Logger) (*Guard, error) {
	classifier, err := security.NewClassifier(cfg.Security, logger)
	if err != nil {
		return nil, fmt.Errorf("load security rules: %w", err)
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Guard{
		classifier: classifier,
		scanner:    security.NewScanner(),
		approvals:  security.NewApprovals(0),
		orch:       orch,
		sink:       sink,
		logger:     logger,
	}, nil
}

// Check validates a command without executing it. A blocked command is a
// normal outcome; the error is only set for usage mistakes or internal
// faults, and an internal fault still carries a fail-closed result.
func (g *Guard) Check(ctx context.Context, command string, cmdCtx *domain.CommandContext) (*CheckOutcome, error) {
	corr := uuid.NewString()
	started := time.Now()

	result, err := g.classifier.Classify(ctx, command, cmdCtx)
	metrics.ValidationsTotal.Inc()
	metrics.ValidationLatency.Observe(time.Since(started).Seconds())
	if err != nil && result == nil {
		return nil, err
	}

	out := &CheckOutcome{
		CorrelationID: corr,
		Command:       command,
		Result:        result,
		Decision:      security.Decide(result),
	}
	switch out.Decision {
	case domain.DecisionReject:
		metrics.BlocksTotal.Inc()
	case domain.DecisionAwaitConfirmation:
		metrics.ConfirmationsTotal.Inc()
		out.Token = g.approvals.Create(command, cmdCtx, result, corr)
	}

	g.audit(ctx, domain.AuditEvent{
		CorrelationID: corr,
		Kind:          domain.AuditValidation,
		Command:       clip(command, auditCommandLimit),
		UserRole:      role(cmdCtx),
		Decision:      out.Decision,
		Validation:    result,
	})
	return out, err
}

// Scan statically analyzes a script without executing it.
func (g *Guard) Scan(ctx context.Context, script string) (*ScanOutcome, error) {
	corr := uuid.NewString()
	issues := g.scanner.Scan(script)
	safe := domain.ScriptSafe(issues)
	metrics.ScansTotal.Inc()

	g.audit(ctx, domain.AuditEvent{
		CorrelationID: corr,
		Kind:          domain.AuditScan,
		Command:       clip(script, auditCommandLimit),
		Detail:        fmt.Sprintf("issues=%d safe=%t", len(issues), safe),
	})
	return &ScanOutcome{CorrelationID: corr, Safe: safe, Issues: issues}, nil
}

// Execute validates a command and, when the decision is proceed, runs it in
// the sandbox. Confirmation and rejection short-circuit before execution.
func (g *Guard) Execute(ctx context.Context, command string, cmdCtx *domain.CommandContext, opts ExecuteOptions) (*ExecuteOutcome, error) {
	check, err := g.Check(ctx, command, cmdCtx)
	if err != nil {
		if check == nil {
			return nil, err
		}
		return &ExecuteOutcome{CheckOutcome: *check}, err
	}

	out := &ExecuteOutcome{CheckOutcome: *check}
	if check.Decision != domain.DecisionProceed {
		return out, nil
	}
	return g.launch(ctx, out, command, cmdCtx, opts)
}

// Confirm resumes a command that was parked behind a confirmation token.
// The original validation travels with the token, so the command runs with
// the risk level it was classified at.
func (g *Guard) Confirm(ctx context.Context, token string, opts ExecuteOptions) (*ExecuteOutcome, error) {
	pending, err := g.approvals.Take(token)
	if err != nil {
		g.audit(ctx, domain.AuditEvent{
			CorrelationID: uuid.NewString(),
			Kind:          domain.AuditConfirmation,
			Decision:      domain.DecisionReject,
			Detail:        "confirmation failed: " + err.Error(),
		})
		return nil, err
	}

	g.audit(ctx, domain.AuditEvent{
		CorrelationID: pending.CorrelationID,
		Kind:          domain.AuditConfirmation,
		Command:       clip(pending.Command, auditCommandLimit),
		UserRole:      role(pending.Context),
		Decision:      domain.DecisionProceed,
		Detail:        "user confirmed",
	})

	out := &ExecuteOutcome{CheckOutcome: CheckOutcome{
		CorrelationID: pending.CorrelationID,
		Command:       pending.Command,
		Result:        pending.Result,
		Decision:      domain.DecisionProceed,
	}}
	return g.launch(ctx, out, pending.Command, pending.Context, opts)
}

// Deny discards a pending confirmation. The command never runs.
func (g *Guard) Deny(ctx context.Context, token string) error {
	pending, err := g.approvals.Take(token)
	if err != nil {
		return err
	}
	g.audit(ctx, domain.AuditEvent{
		CorrelationID: pending.CorrelationID,
		Kind:          domain.AuditConfirmation,
		Command:       clip(pending.Command, auditCommandLimit),
		UserRole:      role(pending.Context),
		Decision:      domain.DecisionReject,
		Detail:        "user denied",
	})
	return nil
}

// launch submits the command to the sandbox and records the execution in the
// audit trail once it finishes, whether or not the caller waits for it.
func (g *Guard) launch(ctx context.Context, out *ExecuteOutcome, command string, cmdCtx *domain.CommandContext, opts ExecuteOptions) (*ExecuteOutcome, error) {
	sandboxOpts := sandbox.Options{
		TimeoutSeconds: opts.TimeoutSeconds,
		Risk:           out.Result.RiskLevel,
	}
	if cmdCtx != nil {
		sandboxOpts.WorkingDirectory = cmdCtx.WorkingDirectory
	}

	id, err := g.orch.Submit(ctx, command, sandboxOpts)
	if err != nil {
		return out, fmt.Errorf("submit execution: %w", err)
	}
	out.ExecutionID = id
	metrics.ExecutionsTotal.Inc()
	metrics.ActiveExecutions.Inc()

	g.wg.Add(1)
	go g.watch(id, out.CorrelationID, command, cmdCtx)

	if opts.NoWait {
		return out, nil
	}

	res, err := g.orch.Wait(ctx, id)
	if err != nil {
		return out, err
	}
	out.Execution = res
	return out, nil
}

// watch waits for an execution to finish and audits its outcome. It runs
// detached from the request context so async executions are still audited.
func (g *Guard) watch(id, corr, command string, cmdCtx *domain.CommandContext) {
	defer g.wg.Done()
	defer metrics.ActiveExecutions.Dec()

	res, err := g.orch.Wait(context.Background(), id)
	if err != nil && res == nil {
		g.logger.Error("execution lost", "execution", id, "error", err)
		return
	}
	if res.TimedOut {
		metrics.TimeoutsTotal.Inc()
	}
	metrics.ExecutionLatency.Observe(res.ExecutionTime)

	g.audit(context.Background(), domain.AuditEvent{
		CorrelationID: corr,
		Kind:          domain.AuditExecution,
		Command:       clip(command, auditCommandLimit),
		UserRole:      role(cmdCtx),
		Execution:     res,
	})
}

// Cancel kills a pending or running execution.
func (g *Guard) Cancel(id string) error {
	return g.orch.Cancel(id)
}

// Status reports the current state of an execution.
func (g *Guard) Status(id string) (*sandbox.Status, error) {
	return g.orch.Status(id)
}

// Wait blocks until an execution finishes.
func (g *Guard) Wait(ctx context.Context, id string) (*domain.SandboxResult, error) {
	return g.orch.Wait(ctx, id)
}

// Rules lists the active rule set in evaluation order.
func (g *Guard) Rules() []domain.SecurityRule {
	return g.classifier.Ruleset().Rules()
}

// Reload swaps in a new security configuration. In-flight classifications
// keep the rule set they started with.
func (g *Guard) Reload(cfg config.SecurityConfig) error {
	return g.classifier.Reload(cfg)
}

// Pending reports how many confirmations are waiting.
func (g *Guard) Pending() int {
	return g.approvals.Len()
}

// Sandboxed reports whether executions are isolated from the host.
func (g *Guard) Sandboxed() bool {
	return g.orch.Sandboxed()
}

// Close stops the sandbox and waits until every execution watcher has
// written its audit event. The audit sink must stay open until Close
// returns.
func (g *Guard) Close() {
	g.orch.Close()
	g.wg.Wait()
}

func (g *Guard) audit(ctx context.Context, event domain.AuditEvent) {
	if err := g.sink.Record(ctx, event); err != nil {
		g.logger.Error("audit record failed",
			"kind", string(event.Kind),
			"correlation_id", event.CorrelationID,
			"error", err,
		)
	}
}

func role(cmdCtx *domain.CommandContext) string {
	if cmdCtx == nil {
		return ""
	}
	return cmdCtx.UserRole
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

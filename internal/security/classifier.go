package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

// Classifier evaluates commands against the compiled rule snapshot.
// Classification is pure and safe for concurrent use; Reload swaps the
// snapshot atomically without disturbing in-flight calls.
type Classifier struct {
	snap   atomic.Pointer[Ruleset]
	logger *slog.Logger
}

func NewClassifier(cfg config.SecurityConfig, logger *slog.Logger) (*Classifier, error) {
	rs, err := LoadRuleset(cfg)
	if err != nil {
		return nil, fmt.Errorf("load rule set: %w", err)
	}
	c := &Classifier{logger: logger}
	c.snap.Store(rs)
	return c, nil
}

// Reload compiles cfg into a fresh snapshot and swaps it in whole.
// On error the previous snapshot stays active.
func (c *Classifier) Reload(cfg config.SecurityConfig) error {
	rs, err := LoadRuleset(cfg)
	if err != nil {
		return fmt.Errorf("load rule set: %w", err)
	}
	c.snap.Store(rs)
	c.logger.Info("rule set reloaded", "rules", len(rs.named)+len(rs.categories))
	return nil
}

// Ruleset returns the active snapshot.
func (c *Classifier) Ruleset() *Ruleset {
	return c.snap.Load()
}

// Classify evaluates one command. The empty command is a usage error, not a
// security decision. All matching rules are collected and the most
// restrictive action wins: a block anywhere beats any allow or confirm, and
// the highest matched risk level is kept. On an internal fault the returned
// result is a block, never an allow.
func (c *Classifier) Classify(ctx context.Context, command string, cmdCtx *domain.CommandContext) (*domain.ValidationResult, error) {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return nil, domain.ErrEmptyCommand
	}

	rs := c.snap.Load()
	if rs == nil {
		res := failClosed("no rule set loaded")
		return res, fmt.Errorf("classifier has no rule set")
	}

	res := &domain.ValidationResult{
		IsValid:      true,
		RiskLevel:    domain.RiskSafe,
		MatchedRules: []string{},
		Warnings:     []string{},
	}

	matched := rs.matches(cmd)
	action := domain.ActionAllow
	if len(matched) == 0 && rs.mode == "strict" {
		action = domain.ActionBlock
		res.BlockReason = "no rule matched and strict mode blocks by default"
		res.Warnings = append(res.Warnings, res.BlockReason)
	}

	for _, m := range matched {
		rule := m.rule
		res.MatchedRules = append(res.MatchedRules, rule.ID())
		if rule.RiskLevel > res.RiskLevel {
			res.RiskLevel = rule.RiskLevel
		}
		if rule.Action.Restrictiveness() > action.Restrictiveness() {
			action = rule.Action
		}
		switch rule.Action {
		case domain.ActionBlock:
			if res.BlockReason == "" {
				res.BlockReason = rule.Description
			}
			res.Warnings = append(res.Warnings, "blocked: "+rule.Description)
		case domain.ActionConfirm:
			res.Warnings = append(res.Warnings, rule.Description)
		}
	}

	// Context overrides: a sensitive working directory escalates the risk
	// one tier and forces confirmation. Forced confirmation is sticky.
	forced := false
	if cmdCtx != nil && rs.sensitiveDir(cmdCtx.WorkingDirectory) {
		res.RiskLevel = res.RiskLevel.Escalate()
		forced = true
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("working directory %s is sensitive; confirmation required", cmdCtx.WorkingDirectory))
	}

	// The business-hours window is evaluated last and may only relax the
	// threshold-derived confirmation, never a block or a forced confirmation.
	threshold := rs.threshold
	if rs.hours != nil && cmdCtx != nil && rs.hours.contains(cmdCtx.Timestamp) {
		threshold = threshold.Escalate()
	}

	res.IsValid = action != domain.ActionBlock
	res.RequiresConfirmation = forced || action == domain.ActionConfirm || res.RiskLevel >= threshold
	if !res.IsValid {
		res.RequiresConfirmation = false
	}

	if !res.IsValid {
		c.logger.Warn("command blocked",
			"command", cmd,
			"risk", res.RiskLevel,
			"matched", res.MatchedRules,
		)
	} else if res.RequiresConfirmation {
		c.logger.Info("command requires confirmation",
			"command", cmd,
			"risk", res.RiskLevel,
			"matched", res.MatchedRules,
		)
	}

	return res, nil
}

// sensitiveDir reports whether wd sits under any configured sensitive
// directory prefix. Separators and case are normalized so Windows and
// Unix style paths compare the same way.
func (rs *Ruleset) sensitiveDir(wd string) bool {
	if wd == "" {
		return false
	}
	norm := normalizePath(wd)
	for _, dir := range rs.sensitive {
		prefix := normalizePath(dir)
		if norm == prefix || strings.HasPrefix(norm, prefix+"/") {
			return true
		}
	}
	return false
}

func normalizePath(p string) string {
	p = strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
	return strings.TrimRight(p, "/")
}

func failClosed(reason string) *domain.ValidationResult {
	return &domain.ValidationResult{
		IsValid:      false,
		RiskLevel:    domain.RiskCritical,
		MatchedRules: []string{},
		Warnings:     []string{"internal classifier fault: " + reason},
		BlockReason:  reason,
	}
}

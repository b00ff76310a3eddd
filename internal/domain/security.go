package domain

import "time"

// PatternKind selects how a SecurityRule pattern is matched against a command.
type PatternKind string

const (
	PatternPrefix PatternKind = "prefix" // case-insensitive literal prefix
	PatternRegex  PatternKind = "regex"  // full regular expression
	PatternAny    PatternKind = "any"    // composite: fires when any sub-pattern matches
)

// SecurityRule maps a command pattern to an action and a risk level.
// Rules with a Name are evaluated before category rules, ordered by Priority
// (lower first). Kind defaults to regex when empty.
type SecurityRule struct {
	Name        string      `json:"name,omitempty"`
	Kind        PatternKind `json:"kind,omitempty"`
	Pattern     string      `json:"pattern,omitempty"`
	Patterns    []string    `json:"patterns,omitempty"` // kind=any only
	Category    string      `json:"category"`
	Action      RuleAction  `json:"action"`
	RiskLevel   RiskLevel   `json:"risk_level"`
	Description string      `json:"description,omitempty"`
	Priority    int         `json:"priority,omitempty"`
}

// ID identifies a matched rule in ValidationResult.MatchedRules.
func (r SecurityRule) ID() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Category
}

// ValidationResult is the classifier's verdict for one command.
// Created fresh per command and never mutated afterwards.
type ValidationResult struct {
	IsValid              bool      `json:"is_valid"`
	RiskLevel            RiskLevel `json:"risk_level"`
	MatchedRules         []string  `json:"matched_rules"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
	Warnings             []string  `json:"warnings"`
	BlockReason          string    `json:"block_reason,omitempty"`
}

// SecurityIssue is one finding from the static scanner. Severity is
// medium, high or critical; informational findings are never emitted.
type SecurityIssue struct {
	Severity    RiskLevel `json:"severity"`
	Message     string    `json:"message"`
	LineNumber  int       `json:"line_number"`
	CodeSnippet string    `json:"code_snippet"`
}

// ScriptSafe reports whether a scanned script may be presented to a user:
// no critical or high issue. Medium issues are advisory only.
func ScriptSafe(issues []SecurityIssue) bool {
	for _, issue := range issues {
		if issue.Severity >= RiskHigh {
			return false
		}
	}
	return true
}

// CommandContext is advisory session context passed into classification.
// The pipeline reads it and never mutates or persists it.
type CommandContext struct {
	UserRole         string    `json:"user_role,omitempty"`
	WorkingDirectory string    `json:"working_directory,omitempty"`
	Timestamp        time.Time `json:"timestamp,omitempty"`
}

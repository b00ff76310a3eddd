package domain

import (
	"encoding/json"
	"testing"
)

// --- RiskLevel ---

func TestRiskLevelOrdering(t *testing.T) {
	levels := []RiskLevel{RiskSafe, RiskLow, RiskMedium, RiskHigh, RiskCritical}
	for i := 1; i < len(levels); i++ {
		if levels[i-1] >= levels[i] {
			t.Fatalf("expected %v < %v", levels[i-1], levels[i])
		}
	}
}

func TestRiskLevelEscalateCapsAtCritical(t *testing.T) {
	if got := RiskHigh.Escalate(); got != RiskCritical {
		t.Fatalf("expected critical, got %v", got)
	}
	if got := RiskCritical.Escalate(); got != RiskCritical {
		t.Fatalf("escalate past critical: got %v", got)
	}
}

func TestParseRiskLevelRoundTrip(t *testing.T) {
	for _, name := range []string{"safe", "low", "medium", "high", "critical"} {
		lvl, err := ParseRiskLevel(name)
		if err != nil {
			t.Fatalf("parse %q: %v", name, err)
		}
		if lvl.String() != name {
			t.Fatalf("round trip %q: got %q", name, lvl.String())
		}
	}
	if _, err := ParseRiskLevel("extreme"); err == nil {
		t.Fatal("expected error for unknown risk level")
	}
}

func TestRiskLevelJSONUsesNames(t *testing.T) {
	data, err := json.Marshal(RiskHigh)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"high"` {
		t.Fatalf("expected \"high\", got %s", data)
	}

	var lvl RiskLevel
	if err := json.Unmarshal([]byte(`"critical"`), &lvl); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if lvl != RiskCritical {
		t.Fatalf("expected critical, got %v", lvl)
	}
	if err := json.Unmarshal([]byte(`"bogus"`), &lvl); err == nil {
		t.Fatal("expected error for unknown literal")
	}
}

// --- RuleAction ---

func TestActionRestrictivenessOrder(t *testing.T) {
	if !(ActionAllow.Restrictiveness() < ActionConfirm.Restrictiveness() &&
		ActionConfirm.Restrictiveness() < ActionBlock.Restrictiveness()) {
		t.Fatal("expected allow < confirm < block restrictiveness")
	}
}

func TestParseRuleAction(t *testing.T) {
	for _, s := range []string{"allow", "confirm", "block"} {
		if _, err := ParseRuleAction(s); err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
	}
	if _, err := ParseRuleAction("deny"); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

// --- ScriptSafe ---

func TestScriptSafe(t *testing.T) {
	medium := []SecurityIssue{{Severity: RiskMedium, Message: "advisory"}}
	if !ScriptSafe(medium) {
		t.Fatal("medium-only issues should be safe to present")
	}
	high := append(medium, SecurityIssue{Severity: RiskHigh, Message: "traversal"})
	if ScriptSafe(high) {
		t.Fatal("a high issue must make the script unsafe")
	}
	if !ScriptSafe(nil) {
		t.Fatal("no issues should be safe")
	}
}

// --- ExecutionState ---

func TestExecutionStateTerminal(t *testing.T) {
	for _, s := range []ExecutionState{StatePending, StateStarting, StateRunning} {
		if s.Terminal() {
			t.Fatalf("%v should not be terminal", s)
		}
	}
	for _, s := range []ExecutionState{StateCompleted, StateTimedOut, StateStartFailed, StateKilled} {
		if !s.Terminal() {
			t.Fatalf("%v should be terminal", s)
		}
	}
}

// --- Wire field names ---

func TestResultFieldNames(t *testing.T) {
	res := ValidationResult{IsValid: true, RiskLevel: RiskSafe, MatchedRules: []string{}, Warnings: []string{}}
	keys := jsonKeys(t, res)
	for _, want := range []string{"is_valid", "risk_level", "matched_rules", "requires_confirmation", "warnings"} {
		if _, ok := keys[want]; !ok {
			t.Fatalf("ValidationResult missing field %q", want)
		}
	}

	issue := SecurityIssue{Severity: RiskHigh, Message: "m", LineNumber: 3, CodeSnippet: "s"}
	keys = jsonKeys(t, issue)
	for _, want := range []string{"severity", "message", "line_number", "code_snippet"} {
		if _, ok := keys[want]; !ok {
			t.Fatalf("SecurityIssue missing field %q", want)
		}
	}

	sb := SandboxResult{ReturnCode: ReturnCodeTimedOut, TimedOut: true}
	keys = jsonKeys(t, sb)
	for _, want := range []string{"stdout", "stderr", "return_code", "execution_time", "timed_out", "sandbox_used", "truncated"} {
		if _, ok := keys[want]; !ok {
			t.Fatalf("SandboxResult missing field %q", want)
		}
	}
}

func jsonKeys(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

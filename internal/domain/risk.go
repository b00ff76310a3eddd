package domain

import (
	"encoding/json"
	"fmt"
)

// RiskLevel classifies how dangerous a command is, ordered from safe to critical.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = [...]string{"safe", "low", "medium", "high", "critical"}

func (r RiskLevel) String() string {
	if r < RiskSafe || r > RiskCritical {
		return fmt.Sprintf("risk(%d)", int(r))
	}
	return riskNames[r]
}

// Escalate raises the level one tier, capped at critical.
func (r RiskLevel) Escalate() RiskLevel {
	if r >= RiskCritical {
		return RiskCritical
	}
	return r + 1
}

// ParseRiskLevel converts a rule/config literal into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for i, name := range riskNames {
		if s == name {
			return RiskLevel(i), nil
		}
	}
	return RiskSafe, fmt.Errorf("unknown risk level %q", s)
}

func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	lvl, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = lvl
	return nil
}

// RuleAction is what a matched rule tells the pipeline to do.
type RuleAction string

const (
	ActionAllow   RuleAction = "allow"
	ActionConfirm RuleAction = "confirm"
	ActionBlock   RuleAction = "block"
)

// Restrictiveness orders actions so the most restrictive match wins
// when several rules fire for the same command.
func (a RuleAction) Restrictiveness() int {
	switch a {
	case ActionBlock:
		return 2
	case ActionConfirm:
		return 1
	default:
		return 0
	}
}

// ParseRuleAction converts a rule/config literal into a RuleAction.
func ParseRuleAction(s string) (RuleAction, error) {
	switch a := RuleAction(s); a {
	case ActionAllow, ActionConfirm, ActionBlock:
		return a, nil
	}
	return "", fmt.Errorf("unknown rule action %q", s)
}

// Decision is the confirmation gate's verdict for a validated command.
type Decision string

const (
	DecisionProceed           Decision = "proceed"
	DecisionAwaitConfirmation Decision = "await_confirmation"
	DecisionReject            Decision = "reject"
)

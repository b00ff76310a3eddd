package security

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

// compiledRule pairs a rule with its precompiled matchers. Compilation
// happens once at load so a malformed pattern can never surface during
// classification.
type compiledRule struct {
	rule     domain.SecurityRule
	matchers []*regexp.Regexp
}

func (c *compiledRule) matches(cmd string) bool {
	for _, re := range c.matchers {
		if re.MatchString(cmd) {
			return true
		}
	}
	return false
}

// Ruleset is an immutable, compiled snapshot of the security configuration.
// A reload builds a fresh Ruleset and swaps it in whole; in-flight
// classifications keep the snapshot they started with.
type Ruleset struct {
	named      []*compiledRule // ordered by priority, then load order
	categories []*compiledRule // grouped by category name
	mode       string          // "permissive" | "strict"
	threshold  domain.RiskLevel
	sensitive  []string
	hours      *businessHours
}

// LoadRuleset compiles the built-in catalog (unless disabled), inline config
// rules and every YAML rule pack found in the configured directories.
func LoadRuleset(cfg config.SecurityConfig) (*Ruleset, error) {
	var specs []domain.SecurityRule
	if !cfg.DisableBuiltinRules {
		specs = append(specs, BuiltinRules()...)
	}
	specs = append(specs, cfg.Rules...)

	for _, dir := range cfg.RuleDirs {
		packRules, err := loadRuleDir(dir)
		if err != nil {
			return nil, err
		}
		specs = append(specs, packRules...)
	}

	threshold, err := domain.ParseRiskLevel(cfg.ConfirmationThreshold)
	if err != nil {
		return nil, fmt.Errorf("confirmation threshold: %w", err)
	}

	rs := &Ruleset{
		mode:      cfg.Mode,
		threshold: threshold,
		sensitive: cfg.SensitiveDirectories,
	}
	if cfg.BusinessHours.Enabled {
		rs.hours, err = newBusinessHours(cfg.BusinessHours)
		if err != nil {
			return nil, fmt.Errorf("business hours: %w", err)
		}
	}

	for i, spec := range specs {
		cr, err := compileRule(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, spec.ID(), err)
		}
		if spec.Name != "" {
			rs.named = append(rs.named, cr)
		} else {
			rs.categories = append(rs.categories, cr)
		}
	}

	sort.SliceStable(rs.named, func(i, j int) bool {
		return rs.named[i].rule.Priority < rs.named[j].rule.Priority
	})
	sort.SliceStable(rs.categories, func(i, j int) bool {
		return rs.categories[i].rule.Category < rs.categories[j].rule.Category
	})

	return rs, nil
}

// matches returns every rule that fires for cmd, named rules first.
// The order is deterministic for a given snapshot and input.
func (rs *Ruleset) matches(cmd string) []*compiledRule {
	var hits []*compiledRule
	for _, cr := range rs.named {
		if cr.matches(cmd) {
			hits = append(hits, cr)
		}
	}
	for _, cr := range rs.categories {
		if cr.matches(cmd) {
			hits = append(hits, cr)
		}
	}
	return hits
}

// Rules returns the rule definitions in evaluation order.
func (rs *Ruleset) Rules() []domain.SecurityRule {
	out := make([]domain.SecurityRule, 0, len(rs.named)+len(rs.categories))
	for _, cr := range rs.named {
		out = append(out, cr.rule)
	}
	for _, cr := range rs.categories {
		out = append(out, cr.rule)
	}
	return out
}

// Mode returns the configured default policy mode.
func (rs *Ruleset) Mode() string { return rs.mode }

// Threshold returns the configured confirmation threshold.
func (rs *Ruleset) Threshold() domain.RiskLevel { return rs.threshold }

func compileRule(spec domain.SecurityRule) (*compiledRule, error) {
	cr := &compiledRule{rule: spec}

	switch spec.Kind {
	case domain.PatternPrefix:
		if spec.Pattern == "" {
			return nil, fmt.Errorf("empty pattern")
		}
		re, err := regexp.Compile(`(?i)^` + regexp.QuoteMeta(spec.Pattern))
		if err != nil {
			return nil, fmt.Errorf("prefix %q: %w", spec.Pattern, err)
		}
		cr.matchers = []*regexp.Regexp{re}
	case "", domain.PatternRegex:
		if spec.Pattern == "" {
			return nil, fmt.Errorf("empty pattern")
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("regex %q: %w", spec.Pattern, err)
		}
		cr.matchers = []*regexp.Regexp{re}
	case domain.PatternAny:
		if len(spec.Patterns) == 0 {
			return nil, fmt.Errorf("kind=any needs at least one pattern")
		}
		matchers, err := compilePatterns(spec.Patterns)
		if err != nil {
			return nil, err
		}
		cr.matchers = matchers
	default:
		return nil, fmt.Errorf("unknown pattern kind %q", spec.Kind)
	}

	if _, err := domain.ParseRuleAction(string(spec.Action)); err != nil {
		return nil, err
	}
	return cr, nil
}

// compilePatterns compiles a mixed list of literals and regular expressions.
// Simple strings are converted to case-insensitive substring matches.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		var re *regexp.Regexp
		var err error
		if isRegex(p) {
			re, err = regexp.Compile(p)
		} else {
			re, err = regexp.Compile(`(?i)` + regexp.QuoteMeta(p))
		}
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func isRegex(s string) bool {
	for _, c := range s {
		switch c {
		case '(', ')', '[', ']', '{', '}', '|', '^', '$', '.', '*', '+', '?', '\\':
			return true
		}
	}
	return false
}

// rulePack is the on-disk YAML shape of a rule file. Enum fields stay
// strings here so a bad literal reports the file and rule index.
type rulePack struct {
	Rules []rulePackEntry `yaml:"rules"`
}

type rulePackEntry struct {
	Name        string   `yaml:"name"`
	Kind        string   `yaml:"kind"`
	Pattern     string   `yaml:"pattern"`
	Patterns    []string `yaml:"patterns"`
	Category    string   `yaml:"category"`
	Action      string   `yaml:"action"`
	RiskLevel   string   `yaml:"risk_level"`
	Description string   `yaml:"description"`
	Priority    int      `yaml:"priority"`
}

// loadRuleDir reads every *.yaml/*.yml pack in dir. A missing directory is
// treated as empty, not an error.
func loadRuleDir(dir string) ([]domain.SecurityRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("rule dir %s: %w", dir, err)
	}

	var rules []domain.SecurityRule
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(dir, name)
		packRules, err := loadRuleFile(path)
		if err != nil {
			return nil, err
		}
		rules = append(rules, packRules...)
	}
	return rules, nil
}

func loadRuleFile(path string) ([]domain.SecurityRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rule pack %s: %w", path, err)
	}

	var pack rulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("rule pack %s: %w", path, err)
	}

	rules := make([]domain.SecurityRule, 0, len(pack.Rules))
	for i, entry := range pack.Rules {
		action, err := domain.ParseRuleAction(entry.Action)
		if err != nil {
			return nil, fmt.Errorf("rule pack %s rule %d: %w", path, i, err)
		}
		risk, err := domain.ParseRiskLevel(entry.RiskLevel)
		if err != nil {
			return nil, fmt.Errorf("rule pack %s rule %d: %w", path, i, err)
		}
		rules = append(rules, domain.SecurityRule{
			Name:        entry.Name,
			Kind:        domain.PatternKind(entry.Kind),
			Pattern:     entry.Pattern,
			Patterns:    entry.Patterns,
			Category:    entry.Category,
			Action:      action,
			RiskLevel:   risk,
			Description: entry.Description,
			Priority:    entry.Priority,
		})
	}
	return rules, nil
}

// businessHours is a weekly window during which threshold-derived
// confirmations are relaxed by one tier.
type businessHours struct {
	start int // minutes since midnight
	end   int
	days  map[time.Weekday]bool
}

func newBusinessHours(cfg config.BusinessHoursConfig) (*businessHours, error) {
	start, err := parseClock(cfg.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(cfg.End)
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, fmt.Errorf("window end %q is not after start %q", cfg.End, cfg.Start)
	}

	days := make(map[time.Weekday]bool)
	if len(cfg.Days) == 0 {
		for d := time.Monday; d <= time.Friday; d++ {
			days[d] = true
		}
	} else {
		for _, name := range cfg.Days {
			day, err := config.ParseWeekday(name)
			if err != nil {
				return nil, err
			}
			days[day] = true
		}
	}
	return &businessHours{start: start, end: end, days: days}, nil
}

// contains reports whether t falls inside the window. The zero time is
// never inside, so requests without a timestamp get no relaxation.
func (b *businessHours) contains(t time.Time) bool {
	if t.IsZero() || !b.days[t.Weekday()] {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= b.start && minutes < b.end
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q (want HH:MM)", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

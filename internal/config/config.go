package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

// Config is the root configuration for psguard.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Security SecurityConfig `json:"security"`
	Sandbox  SandboxConfig  `json:"sandbox"`
	Audit    AuditConfig    `json:"audit"`
	Server   ServerConfig   `json:"server"`
	MCP      MCPConfig      `json:"mcp,omitempty"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"` // "debug" | "info" | "warn" | "error"
	LogFile  string `json:"logFile,omitempty"`
}

// SecurityConfig drives the rule set, the classifier and the confirmation gate.
type SecurityConfig struct {
	Mode                  string                `json:"mode"`                  // "permissive" | "strict"
	ConfirmationThreshold string                `json:"confirmationThreshold"` // risk level literal
	SensitiveDirectories  []string              `json:"sensitiveDirectories"`
	BusinessHours         BusinessHoursConfig   `json:"businessHours"`
	RuleDirs              []string              `json:"ruleDirs,omitempty"` // directories of YAML rule packs
	Rules                 []domain.SecurityRule `json:"rules,omitempty"`    // inline extra rules
	DisableBuiltinRules   bool                  `json:"disableBuiltinRules,omitempty"`
}

// BusinessHoursConfig defines a weekly window during which threshold-derived
// confirmations are relaxed by one tier. Blocks are never relaxed.
type BusinessHoursConfig struct {
	Enabled bool     `json:"enabled"`
	Start   string   `json:"start"`          // "09:00"
	End     string   `json:"end"`            // "18:00"
	Days    []string `json:"days,omitempty"` // "mon".."sun"; empty = mon-fri
}

// SandboxConfig bounds sandboxed executions and selects the backend.
type SandboxConfig struct {
	Enabled              bool    `json:"enabled"`
	Image                string  `json:"image"`
	Shell                string  `json:"shell"` // "pwsh" | "sh"
	TimeoutSeconds       int     `json:"timeoutSeconds"`
	MemoryLimit          string  `json:"memoryLimit"`
	CPULimit             float64 `json:"cpuLimit"`
	PidsLimit            int     `json:"pidsLimit"`
	Network              string  `json:"network"` // "deny" | "allow"
	WorkDir              string  `json:"workDir,omitempty"`
	MaxOutputBytes       int     `json:"maxOutputBytes"`
	PoolSize             int     `json:"poolSize"`
	QueueSize            int     `json:"queueSize"`
	KillGraceSeconds     int     `json:"killGraceSeconds"`
	AllowLocalFallback   bool    `json:"allowLocalFallback"`
	LocalFallbackMaxRisk string  `json:"localFallbackMaxRisk"` // risk level literal
}

// ExecutionConfig converts the sandbox section into per-execution limits.
func (s SandboxConfig) ExecutionConfig() domain.ExecutionConfig {
	network := domain.NetworkDeny
	if s.Network == "allow" {
		network = domain.NetworkAllow
	}
	return domain.ExecutionConfig{
		TimeoutSeconds:   s.TimeoutSeconds,
		MemoryLimit:      s.MemoryLimit,
		CPULimit:         s.CPULimit,
		Network:          network,
		WorkingDirectory: s.WorkDir,
		MaxOutputBytes:   s.MaxOutputBytes,
	}
}

type AuditConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"dbPath"`
	RetentionDays int    `json:"retentionDays"`
	QueueSize     int    `json:"queueSize"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Enabled          bool   `json:"enabled"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
	APIKey           string `json:"apiKey,omitempty"`
	ExecutePerMinute int    `json:"executePerMinute"` // rate limit on /v1/execute
}

// MCPConfig configures the stdio Model Context Protocol server.
type MCPConfig struct {
	Enabled bool `json:"enabled"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.psguard).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".psguard"
	}
	return filepath.Join(home, ".psguard")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// DefaultRuleDir returns the default rule-pack directory (~/.psguard/rules.d).
func DefaultRuleDir() string {
	return filepath.Join(DefaultConfigDir(), "rules.d")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
	cfg.Sandbox.WorkDir = ExpandPath(cfg.Sandbox.WorkDir)
	for i, dir := range cfg.Security.RuleDirs {
		cfg.Security.RuleDirs[i] = ExpandPath(dir)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	switch cfg.Security.Mode {
	case "permissive", "strict":
		// valid
	default:
		errs = append(errs, "security.mode must be one of: permissive, strict")
	}
	if _, err := domain.ParseRiskLevel(cfg.Security.ConfirmationThreshold); err != nil {
		errs = append(errs, "security.confirmationThreshold: "+err.Error())
	}
	if cfg.Security.BusinessHours.Enabled {
		if err := validateClock(cfg.Security.BusinessHours.Start); err != nil {
			errs = append(errs, "security.businessHours.start: "+err.Error())
		}
		if err := validateClock(cfg.Security.BusinessHours.End); err != nil {
			errs = append(errs, "security.businessHours.end: "+err.Error())
		}
		for _, d := range cfg.Security.BusinessHours.Days {
			if _, err := ParseWeekday(d); err != nil {
				errs = append(errs, "security.businessHours.days: "+err.Error())
			}
		}
	}
	for i, rule := range cfg.Security.Rules {
		if err := validateRule(rule); err != nil {
			errs = append(errs, fmt.Sprintf("security.rules[%d]: %v", i, err))
		}
	}

	if cfg.Sandbox.TimeoutSeconds < 1 {
		errs = append(errs, "sandbox.timeoutSeconds must be >= 1")
	}
	if cfg.Sandbox.MaxOutputBytes < 1 {
		errs = append(errs, "sandbox.maxOutputBytes must be >= 1")
	}
	if cfg.Sandbox.PoolSize < 1 {
		errs = append(errs, "sandbox.poolSize must be >= 1")
	}
	if cfg.Sandbox.QueueSize < 0 {
		errs = append(errs, "sandbox.queueSize must be >= 0")
	}
	if cfg.Sandbox.KillGraceSeconds < 1 {
		errs = append(errs, "sandbox.killGraceSeconds must be >= 1")
	}
	switch cfg.Sandbox.Network {
	case "deny", "allow":
		// valid
	default:
		errs = append(errs, "sandbox.network must be one of: deny, allow")
	}
	switch cfg.Sandbox.Shell {
	case "pwsh", "sh":
		// valid
	default:
		errs = append(errs, "sandbox.shell must be one of: pwsh, sh")
	}
	if _, err := domain.ParseRiskLevel(cfg.Sandbox.LocalFallbackMaxRisk); err != nil {
		errs = append(errs, "sandbox.localFallbackMaxRisk: "+err.Error())
	}

	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath is required when audit is enabled")
	}
	if cfg.Audit.QueueSize < 1 {
		errs = append(errs, "audit.queueSize must be >= 1")
	}
	if cfg.Audit.RetentionDays < 1 {
		errs = append(errs, "audit.retentionDays must be >= 1")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.ExecutePerMinute < 1 {
		errs = append(errs, "server.executePerMinute must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateRule(rule domain.SecurityRule) error {
	switch rule.Kind {
	case "", domain.PatternPrefix, domain.PatternRegex:
		if rule.Pattern == "" {
			return fmt.Errorf("pattern is required")
		}
	case domain.PatternAny:
		if len(rule.Patterns) == 0 {
			return fmt.Errorf("patterns is required for kind=any")
		}
	default:
		return fmt.Errorf("unknown pattern kind %q", rule.Kind)
	}
	if _, err := domain.ParseRuleAction(string(rule.Action)); err != nil {
		return err
	}
	if rule.Category == "" && rule.Name == "" {
		return fmt.Errorf("rule needs a name or a category")
	}
	return nil
}

func validateClock(s string) error {
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("invalid clock time %q (want HH:MM)", s)
	}
	return nil
}

// ParseWeekday converts "mon".."sun" into a time.Weekday.
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(s) {
	case "mon":
		return time.Monday, nil
	case "tue":
		return time.Tuesday, nil
	case "wed":
		return time.Wednesday, nil
	case "thu":
		return time.Thursday, nil
	case "fri":
		return time.Friday, nil
	case "sat":
		return time.Saturday, nil
	case "sun":
		return time.Sunday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

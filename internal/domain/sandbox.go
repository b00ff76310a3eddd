package domain

import "time"

// NetworkPolicy controls whether a sandboxed command may reach the network.
type NetworkPolicy string

const (
	NetworkDeny  NetworkPolicy = "deny"
	NetworkAllow NetworkPolicy = "allow"
)

// ExecutionConfig bounds a single sandboxed execution.
type ExecutionConfig struct {
	TimeoutSeconds   int           `json:"timeout_seconds"`
	MemoryLimit      string        `json:"memory_limit"` // docker syntax, e.g. "512m"
	CPULimit         float64       `json:"cpu_limit"`    // cores
	Network          NetworkPolicy `json:"network"`
	WorkingDirectory string        `json:"working_directory,omitempty"`
	MaxOutputBytes   int           `json:"max_output_bytes"`
}

// Timeout converts the configured seconds into a duration.
func (c ExecutionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Reserved return codes for executions that did not exit on their own.
// A real exit status is always >= 0.
const (
	ReturnCodeTimedOut    = -1
	ReturnCodeKilled      = -2
	ReturnCodeStartFailed = -3
)

// ExecutionState tracks one execution through its lifecycle.
type ExecutionState string

const (
	StatePending     ExecutionState = "pending"
	StateStarting    ExecutionState = "starting"
	StateRunning     ExecutionState = "running"
	StateCompleted   ExecutionState = "completed"
	StateTimedOut    ExecutionState = "timed_out"
	StateStartFailed ExecutionState = "start_failed"
	StateKilled      ExecutionState = "killed"
)

// Terminal reports whether the state is final.
func (s ExecutionState) Terminal() bool {
	switch s {
	case StateCompleted, StateTimedOut, StateStartFailed, StateKilled:
		return true
	}
	return false
}

// SandboxResult is the immutable outcome of one execution attempt.
// ExecutionTime is wall-clock seconds. Truncated means stdout or stderr
// exceeded the output bound and holds a strict prefix of the real output.
type SandboxResult struct {
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ReturnCode    int     `json:"return_code"`
	ExecutionTime float64 `json:"execution_time"`
	TimedOut      bool    `json:"timed_out"`
	SandboxUsed   bool    `json:"sandbox_used"`
	Truncated     bool    `json:"truncated"`
}

package domain

import "errors"

// Usage and infrastructure errors. These are distinct from policy outcomes:
// a blocked command is a valid ValidationResult, never an error.
var (
	ErrEmptyCommand        = errors.New("command is empty")
	ErrSandboxUnavailable  = errors.New("sandbox backend unavailable")
	ErrUnknownExecution    = errors.New("unknown execution id")
	ErrExecutionFinished   = errors.New("execution already finished")
	ErrUnknownConfirmation = errors.New("unknown or expired confirmation token")
	ErrQueueFull           = errors.New("execution queue full")
)

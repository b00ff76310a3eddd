package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

// LocalBackend runs commands directly on the host shell. It enforces the
// timeout and output cap but none of the container isolation, so the
// orchestrator only offers it for low-risk work when fallback is enabled.
type LocalBackend struct {
	shell  string
	logger *slog.Logger
}

func NewLocalBackend(cfg config.SandboxConfig, logger *slog.Logger) *LocalBackend {
	shell := cfg.Shell
	if shell == "" {
		shell = "pwsh"
	}
	return &LocalBackend{shell: shell, logger: logger}
}

func (l *LocalBackend) Name() string    { return "local" }
func (l *LocalBackend) Sandboxed() bool { return false }

func (l *LocalBackend) Available(ctx context.Context) error {
	bin := l.shell
	if bin != "sh" {
		bin = "pwsh"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("%w: %s not found in PATH", domain.ErrSandboxUnavailable, bin)
	}
	return nil
}

func (l *LocalBackend) Start(ctx context.Context, spec StartSpec) (Handle, error) {
	argv := shellInvocation(l.shell, spec.Command)

	stdout := newBoundedBuffer(spec.Config.MaxOutputBytes)
	stderr := newBoundedBuffer(spec.Config.MaxOutputBytes)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if spec.Config.WorkingDirectory != "" {
		cmd.Dir = spec.Config.WorkingDirectory
	}

	l.logger.Warn("sandbox disabled, running on host",
		"execution", spec.ID,
		"shell", argv[0],
	)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", domain.ErrSandboxUnavailable, argv[0], err)
	}

	h := &localHandle{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan error, 1),
	}
	go func() { h.done <- cmd.Wait() }()
	return h, nil
}

type localHandle struct {
	cmd    *exec.Cmd
	stdout *boundedBuffer
	stderr *boundedBuffer
	done   chan error

	mu      sync.Mutex
	waitErr error
	waited  bool
}

func (h *localHandle) Wait(ctx context.Context) (WaitStatus, error) {
	h.mu.Lock()
	if h.waited {
		err := h.waitErr
		h.mu.Unlock()
		ws := h.snapshot()
		ws.ExitCode = exitCode(err)
		return ws, nil
	}
	h.mu.Unlock()

	select {
	case err := <-h.done:
		h.mu.Lock()
		h.waited, h.waitErr = true, err
		h.mu.Unlock()
		ws := h.snapshot()
		ws.ExitCode = exitCode(err)
		return ws, nil
	case <-ctx.Done():
		return h.snapshot(), ctx.Err()
	}
}

func (h *localHandle) snapshot() WaitStatus {
	return WaitStatus{
		Stdout:          h.stdout.String(),
		Stderr:          h.stderr.String(),
		StdoutTruncated: h.stdout.Truncated(),
		StderrTruncated: h.stderr.Truncated(),
	}
}

func (h *localHandle) Output() (string, string) {
	return h.stdout.String(), h.stderr.String()
}

func (h *localHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

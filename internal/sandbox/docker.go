package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

// DockerBackend runs each execution in its own resource-limited container.
// Containers are named psguard-<id> so a kill reaches the container itself,
// not just the docker CLI process.
type DockerBackend struct {
	image     string
	shell     string
	pidsLimit int
	logger    *slog.Logger
}

func NewDockerBackend(cfg config.SandboxConfig, logger *slog.Logger) *DockerBackend {
	image := cfg.Image
	if image == "" {
		image = "mcr.microsoft.com/powershell:latest"
	}
	shell := cfg.Shell
	if shell == "" {
		shell = "pwsh"
	}
	pids := cfg.PidsLimit
	if pids <= 0 {
		pids = 64
	}
	return &DockerBackend{
		image:     image,
		shell:     shell,
		pidsLimit: pids,
		logger:    logger,
	}
}

func (d *DockerBackend) Name() string    { return "docker" }
func (d *DockerBackend) Sandboxed() bool { return true }

// Available verifies that the Docker daemon answers.
func (d *DockerBackend) Available(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "version", "--format", "{{.Server.Version}}")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: docker not available: %v", domain.ErrSandboxUnavailable, err)
	}
	return nil
}

func (d *DockerBackend) Start(ctx context.Context, spec StartSpec) (Handle, error) {
	name := containerName(spec.ID)
	args := d.runArgs(name, spec)

	stdout := newBoundedBuffer(spec.Config.MaxOutputBytes)
	stderr := newBoundedBuffer(spec.Config.MaxOutputBytes)

	cmd := exec.Command("docker", args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	d.logger.Info("sandbox starting",
		"execution", spec.ID,
		"image", d.image,
		"network", spec.Config.Network,
	)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start container: %v", domain.ErrSandboxUnavailable, err)
	}

	h := &dockerHandle{
		container: name,
		cmd:       cmd,
		stdout:    stdout,
		stderr:    stderr,
		done:      make(chan error, 1),
	}
	go func() { h.done <- cmd.Wait() }()
	return h, nil
}

// runArgs builds the docker run invocation for one execution.
func (d *DockerBackend) runArgs(name string, spec StartSpec) []string {
	cfg := spec.Config
	args := []string{
		"run", "--rm",
		"--name", name,
		"--memory", cfg.MemoryLimit,
		"--cpus", strconv.FormatFloat(cfg.CPULimit, 'f', -1, 64),
		"--pids-limit", strconv.Itoa(d.pidsLimit),
		"--read-only",
		"--tmpfs", "/tmp:rw,size=64m",
	}
	if cfg.Network != domain.NetworkAllow {
		args = append(args, "--network", "none")
	}
	if cfg.WorkingDirectory != "" {
		args = append(args, "--workdir", "/work",
			"--volume", cfg.WorkingDirectory+":/work:ro")
	}
	args = append(args, d.image)
	args = append(args, shellInvocation(d.shell, spec.Command)...)
	return args
}

func containerName(id string) string {
	return "psguard-" + id
}

type dockerHandle struct {
	container string
	cmd       *exec.Cmd
	stdout    *boundedBuffer
	stderr    *boundedBuffer
	done      chan error

	mu       sync.Mutex
	waitErr  error
	waited   bool
	killOnce sync.Once
}

func (h *dockerHandle) Wait(ctx context.Context) (WaitStatus, error) {
	h.mu.Lock()
	if h.waited {
		err := h.waitErr
		h.mu.Unlock()
		return h.status(err)
	}
	h.mu.Unlock()

	select {
	case err := <-h.done:
		h.mu.Lock()
		h.waited, h.waitErr = true, err
		h.mu.Unlock()
		return h.status(err)
	case <-ctx.Done():
		ws, _ := h.partial()
		return ws, ctx.Err()
	}
}

// status derives the exit code after the docker CLI finished. Exit code 125
// is the docker CLI itself failing (daemon or image problem), which is a
// sandbox-start failure, not a command result.
func (h *dockerHandle) status(waitErr error) (WaitStatus, error) {
	ws, _ := h.partial()
	ws.ExitCode = exitCode(waitErr)
	if ws.ExitCode == 125 {
		return ws, fmt.Errorf("%w: docker run failed: %s", domain.ErrSandboxUnavailable, ws.Stderr)
	}
	return ws, nil
}

func (h *dockerHandle) partial() (WaitStatus, error) {
	return WaitStatus{
		Stdout:          h.stdout.String(),
		Stderr:          h.stderr.String(),
		StdoutTruncated: h.stdout.Truncated(),
		StderrTruncated: h.stderr.Truncated(),
	}, nil
}

func (h *dockerHandle) Output() (string, string) {
	return h.stdout.String(), h.stderr.String()
}

// Kill stops the container. docker kill reaches into the container; killing
// only the CLI process would leave it running.
func (h *dockerHandle) Kill() error {
	var err error
	h.killOnce.Do(func() {
		kill := exec.Command("docker", "kill", h.container)
		if kerr := kill.Run(); kerr != nil {
			// The container may have already exited; make sure the CLI
			// process is gone either way.
			if h.cmd.Process != nil {
				_ = h.cmd.Process.Kill()
			}
			err = kerr
		}
	})
	return err
}

func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if ee, ok := waitErr.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}

package sandbox

import (
	"context"
	"sync"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

// StartSpec describes one execution to a backend.
type StartSpec struct {
	ID      string
	Command string
	Config  domain.ExecutionConfig
}

// WaitStatus is what a backend reports for one execution. Output is already
// bounded; the truncated flags say whether the bound was hit.
type WaitStatus struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
}

// Handle is a started execution. Wait may be called again after a Kill to
// reap the process; Kill is safe to call more than once.
type Handle interface {
	Wait(ctx context.Context) (WaitStatus, error)
	Kill() error
	// Output returns the output captured so far, for live streaming.
	Output() (stdout, stderr string)
}

// Backend starts isolated processes. The orchestrator owns timeout and
// cancellation; a backend only starts, waits and kills.
type Backend interface {
	Name() string
	// Sandboxed reports whether executions are isolated from the host.
	Sandboxed() bool
	// Available probes whether the backend can start executions at all.
	Available(ctx context.Context) error
	Start(ctx context.Context, spec StartSpec) (Handle, error)
}

// boundedBuffer keeps a strict prefix of everything written to it. Writes
// past the limit are counted but dropped, so the retained bytes are always
// a prefix of the real output and the flag reports the overflow.
type boundedBuffer struct {
	mu        sync.Mutex
	limit     int
	buf       []byte
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	if limit <= 0 {
		limit = 64 * 1024
	}
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.limit - len(b.buf)
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func (b *boundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// shellInvocation maps a shell name to the argv that runs one command string.
// pwsh handles pipes and quoting itself; sh -c does the same for POSIX.
func shellInvocation(shell, command string) []string {
	if shell == "pwsh" {
		return []string{"pwsh", "-NoLogo", "-NonInteractive", "-Command", command}
	}
	return []string{"sh", "-c", command}
}

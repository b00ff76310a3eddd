package sandbox

import (
	"errors"
	"strings"
	"testing"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

// --- boundedBuffer ---

func TestBoundedBufferKeepsPrefix(t *testing.T) {
	b := newBoundedBuffer(10)

	for _, chunk := range []string{"abc", "defgh", "ijklmnop"} {
		n, err := b.Write([]byte(chunk))
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if n != len(chunk) {
			t.Fatalf("Write reported %d bytes, want %d; a short write would abort the pipe copy", n, len(chunk))
		}
	}

	got := b.String()
	if got != "abcdefghij" {
		t.Errorf("buffer = %q, want the first 10 bytes written", got)
	}
	if !strings.HasPrefix("abcdefghijklmnop", got) {
		t.Errorf("retained bytes %q are not a prefix of the input", got)
	}
	if !b.Truncated() {
		t.Error("Truncated should be true after overflow")
	}
}

func TestBoundedBufferUnderLimit(t *testing.T) {
	b := newBoundedBuffer(64)
	if _, err := b.Write([]byte("short output")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if b.Truncated() {
		t.Error("Truncated should be false under the limit")
	}
	if b.String() != "short output" {
		t.Errorf("buffer = %q", b.String())
	}
}

func TestBoundedBufferDefaultLimit(t *testing.T) {
	b := newBoundedBuffer(0)
	if b.limit != 64*1024 {
		t.Errorf("default limit = %d, want 64KiB", b.limit)
	}
}

// --- shell invocation ---

func TestShellInvocation(t *testing.T) {
	got := shellInvocation("pwsh", "Get-Process | Select-Object -First 5")
	want := []string{"pwsh", "-NoLogo", "-NonInteractive", "-Command", "Get-Process | Select-Object -First 5"}
	if len(got) != len(want) {
		t.Fatalf("argv = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	got = shellInvocation("sh", "ls -la")
	if len(got) != 3 || got[0] != "sh" || got[1] != "-c" || got[2] != "ls -la" {
		t.Errorf("sh argv = %v", got)
	}
}

// --- docker argument construction ---

func dockerForTest() *DockerBackend {
	cfg := config.Defaults().Sandbox
	return NewDockerBackend(cfg, testLogger())
}

func TestDockerRunArgs(t *testing.T) {
	d := dockerForTest()
	spec := StartSpec{
		ID:      "abc123",
		Command: "Get-Process",
		Config: domain.ExecutionConfig{
			TimeoutSeconds: 30,
			MemoryLimit:    "512m",
			CPULimit:       1.5,
			Network:        domain.NetworkDeny,
			MaxOutputBytes: 65536,
		},
	}
	args := d.runArgs(containerName(spec.ID), spec)
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"run --rm",
		"--name psguard-abc123",
		"--memory 512m",
		"--cpus 1.5",
		"--pids-limit 64",
		"--read-only",
		"--tmpfs /tmp:rw,size=64m",
		"--network none",
		"pwsh -NoLogo -NonInteractive -Command Get-Process",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q:\n%s", want, joined)
		}
	}
}

func TestDockerRunArgsNetworkAllow(t *testing.T) {
	d := dockerForTest()
	spec := StartSpec{
		ID:      "net1",
		Command: "Invoke-WebRequest https://example.com",
		Config: domain.ExecutionConfig{
			TimeoutSeconds: 30,
			MemoryLimit:    "512m",
			CPULimit:       1,
			Network:        domain.NetworkAllow,
		},
	}
	args := d.runArgs(containerName(spec.ID), spec)
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "--network none") {
		t.Errorf("network allow must not isolate the network:\n%s", joined)
	}
}

func TestDockerRunArgsWorkingDirectory(t *testing.T) {
	d := dockerForTest()
	spec := StartSpec{
		ID:      "wd1",
		Command: "Get-ChildItem",
		Config: domain.ExecutionConfig{
			TimeoutSeconds:   30,
			MemoryLimit:      "512m",
			CPULimit:         1,
			Network:          domain.NetworkDeny,
			WorkingDirectory: "/srv/data",
		},
	}
	args := d.runArgs(containerName(spec.ID), spec)
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--workdir /work") {
		t.Errorf("args missing workdir:\n%s", joined)
	}
	if !strings.Contains(joined, "--volume /srv/data:/work:ro") {
		t.Errorf("working directory must be mounted read only:\n%s", joined)
	}
}

func TestContainerName(t *testing.T) {
	if got := containerName("deadbeef"); got != "psguard-deadbeef" {
		t.Errorf("containerName = %q", got)
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(nil); got != 0 {
		t.Errorf("exitCode(nil) = %d, want 0", got)
	}
	if got := exitCode(errors.New("wait: no child processes")); got != -1 {
		t.Errorf("exitCode(non-exit error) = %d, want -1", got)
	}
}

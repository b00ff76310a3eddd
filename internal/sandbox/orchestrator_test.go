package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

// --- Fakes ---

// fakeHandle simulates a process that runs for delay, or until killed.
type fakeHandle struct {
	stdout   string
	stderr   string
	exit     int
	delay    time.Duration
	truncOut bool

	killOnce sync.Once
	killCh   chan struct{}
}

func newFakeHandle(stdout string, exit int, delay time.Duration) *fakeHandle {
	return &fakeHandle{stdout: stdout, exit: exit, delay: delay, killCh: make(chan struct{})}
}

func (h *fakeHandle) Wait(ctx context.Context) (WaitStatus, error) {
	t := time.NewTimer(h.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return WaitStatus{Stdout: h.stdout, Stderr: h.stderr, ExitCode: h.exit, StdoutTruncated: h.truncOut}, nil
	case <-h.killCh:
		return WaitStatus{Stdout: h.stdout, Stderr: h.stderr, ExitCode: 137, StdoutTruncated: h.truncOut}, nil
	case <-ctx.Done():
		return WaitStatus{Stdout: h.stdout, Stderr: h.stderr}, ctx.Err()
	}
}

func (h *fakeHandle) Kill() error {
	h.killOnce.Do(func() { close(h.killCh) })
	return nil
}

func (h *fakeHandle) Output() (string, string) { return h.stdout, h.stderr }

type fakeBackend struct {
	name      string
	sandboxed bool
	availErr  error
	startErr  error
	make      func(spec StartSpec) *fakeHandle

	mu      sync.Mutex
	started []StartSpec
}

func (b *fakeBackend) Name() string    { return b.name }
func (b *fakeBackend) Sandboxed() bool { return b.sandboxed }

func (b *fakeBackend) Available(ctx context.Context) error { return b.availErr }

func (b *fakeBackend) Start(ctx context.Context, spec StartSpec) (Handle, error) {
	b.mu.Lock()
	b.started = append(b.started, spec)
	b.mu.Unlock()
	if b.startErr != nil {
		return nil, b.startErr
	}
	return b.make(spec), nil
}

func (b *fakeBackend) startCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.started)
}

func instantBackend(stdout string, exit int) *fakeBackend {
	return &fakeBackend{
		name:      "fake",
		sandboxed: true,
		make: func(spec StartSpec) *fakeHandle {
			return newFakeHandle(stdout, exit, time.Millisecond)
		},
	}
}

func sleeperBackend(d time.Duration) *fakeBackend {
	return &fakeBackend{
		name:      "fake",
		sandboxed: true,
		make: func(spec StartSpec) *fakeHandle {
			return newFakeHandle("partial", 0, d)
		},
	}
}

func testSandboxConfig() config.SandboxConfig {
	cfg := config.Defaults().Sandbox
	cfg.PoolSize = 2
	cfg.QueueSize = 8
	cfg.KillGraceSeconds = 1
	return cfg
}

func newTestOrchestrator(t *testing.T, primary, fallback Backend, cfg config.SandboxConfig) *Orchestrator {
	t.Helper()
	o := NewWithBackends(cfg, primary, fallback, testLogger())
	t.Cleanup(o.Close)
	return o
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitForState(t *testing.T, o *Orchestrator, id string, want domain.ExecutionState) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st, err := o.Status(id)
		if err != nil {
			t.Fatalf("Status(%s): %v", id, err)
		}
		if st.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("execution %s never reached state %s", id, want)
}

// --- Run ---

func TestRunCompleted(t *testing.T) {
	o := newTestOrchestrator(t, instantBackend("hello\n", 0), nil, testSandboxConfig())

	res, err := o.Run(context.Background(), "Get-Process", Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ReturnCode != 0 {
		t.Errorf("return code = %d, want 0", res.ReturnCode)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.TimedOut {
		t.Error("TimedOut should be false")
	}
	if !res.SandboxUsed {
		t.Error("SandboxUsed should be true for a sandboxed backend")
	}
	if res.ExecutionTime < 0 {
		t.Errorf("execution time = %v, want >= 0", res.ExecutionTime)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	o := newTestOrchestrator(t, instantBackend("", 3), nil, testSandboxConfig())

	res, err := o.Run(context.Background(), "exit 3", Options{})
	if err != nil {
		t.Fatalf("non-zero exit must not surface as an error, got %v", err)
	}
	if res.ReturnCode != 3 {
		t.Errorf("return code = %d, want 3", res.ReturnCode)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	o := newTestOrchestrator(t, instantBackend("", 0), nil, testSandboxConfig())

	if _, err := o.Run(context.Background(), "", Options{}); !errors.Is(err, domain.ErrEmptyCommand) {
		t.Errorf("err = %v, want ErrEmptyCommand", err)
	}
}

// --- Timeout ---

func TestTimeoutKillsExecution(t *testing.T) {
	o := newTestOrchestrator(t, sleeperBackend(10*time.Second), nil, testSandboxConfig())

	start := time.Now()
	res, err := o.Run(context.Background(), "Start-Sleep -Seconds 10", Options{TimeoutSeconds: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout enforcement took %v, want well under the command's own duration", elapsed)
	}
	if !res.TimedOut {
		t.Error("TimedOut should be true")
	}
	if res.ReturnCode != domain.ReturnCodeTimedOut {
		t.Errorf("return code = %d, want %d", res.ReturnCode, domain.ReturnCodeTimedOut)
	}
	if res.Stdout != "partial" {
		t.Errorf("partial output should survive the kill, got %q", res.Stdout)
	}
}

func TestTimedOutStateDistinctFromKilled(t *testing.T) {
	o := newTestOrchestrator(t, sleeperBackend(10*time.Second), nil, testSandboxConfig())

	id, err := o.Submit(context.Background(), "Start-Sleep -Seconds 10", Options{TimeoutSeconds: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := o.Wait(context.Background(), id); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	st, err := o.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != domain.StateTimedOut {
		t.Errorf("state = %s, want %s", st.State, domain.StateTimedOut)
	}
}

// --- Cancel ---

func TestCancelRunningExecution(t *testing.T) {
	o := newTestOrchestrator(t, sleeperBackend(10*time.Second), nil, testSandboxConfig())

	id, err := o.Submit(context.Background(), "Start-Sleep -Seconds 10", Options{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForState(t, o, id, domain.StateRunning)

	if err := o.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	res, err := o.Wait(context.Background(), id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.ReturnCode != domain.ReturnCodeKilled {
		t.Errorf("return code = %d, want %d", res.ReturnCode, domain.ReturnCodeKilled)
	}
	if res.TimedOut {
		t.Error("a cancelled execution must not be reported as timed out")
	}
	st, _ := o.Status(id)
	if st.State != domain.StateKilled {
		t.Errorf("state = %s, want %s", st.State, domain.StateKilled)
	}
}

func TestCancelFinishedExecution(t *testing.T) {
	o := newTestOrchestrator(t, instantBackend("done", 0), nil, testSandboxConfig())

	id, err := o.Submit(context.Background(), "Get-Date", Options{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := o.Wait(context.Background(), id); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := o.Cancel(id); !errors.Is(err, domain.ErrExecutionFinished) {
		t.Errorf("err = %v, want ErrExecutionFinished", err)
	}
}

func TestCancelUnknownExecution(t *testing.T) {
	o := newTestOrchestrator(t, instantBackend("", 0), nil, testSandboxConfig())

	if err := o.Cancel("no-such-id"); !errors.Is(err, domain.ErrUnknownExecution) {
		t.Errorf("err = %v, want ErrUnknownExecution", err)
	}
}

func TestCancelQueuedExecution(t *testing.T) {
	cfg := testSandboxConfig()
	cfg.PoolSize = 1
	cfg.QueueSize = 4
	o := newTestOrchestrator(t, sleeperBackend(10*time.Second), nil, cfg)

	first, err := o.Submit(context.Background(), "Start-Sleep -Seconds 10", Options{})
	if err != nil {
		t.Fatalf("Submit first: %v", err)
	}
	waitForState(t, o, first, domain.StateRunning)

	// The only worker is busy, so this one stays queued.
	queued, err := o.Submit(context.Background(), "Get-Process", Options{})
	if err != nil {
		t.Fatalf("Submit queued: %v", err)
	}
	if err := o.Cancel(queued); err != nil {
		t.Fatalf("Cancel queued: %v", err)
	}
	if err := o.Cancel(first); err != nil {
		t.Fatalf("Cancel first: %v", err)
	}
	res, err := o.Wait(context.Background(), queued)
	if err != nil {
		t.Fatalf("Wait queued: %v", err)
	}
	if res.ReturnCode != domain.ReturnCodeKilled {
		t.Errorf("return code = %d, want %d", res.ReturnCode, domain.ReturnCodeKilled)
	}
}

// --- Start failures and fallback ---

func TestStartFailure(t *testing.T) {
	primary := instantBackend("", 0)
	primary.startErr = errors.New("image pull failed")
	o := newTestOrchestrator(t, primary, nil, testSandboxConfig())

	id, err := o.Submit(context.Background(), "Get-Process", Options{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res, err := o.Wait(context.Background(), id)
	if err == nil {
		t.Fatal("start failure should surface as an error from Wait")
	}
	if res == nil || res.ReturnCode != domain.ReturnCodeStartFailed {
		t.Fatalf("result = %+v, want return code %d", res, domain.ReturnCodeStartFailed)
	}
	st, _ := o.Status(id)
	if st.State != domain.StateStartFailed {
		t.Errorf("state = %s, want %s", st.State, domain.StateStartFailed)
	}
}

func TestFallbackUsedForLowRisk(t *testing.T) {
	primary := instantBackend("", 0)
	primary.availErr = domain.ErrSandboxUnavailable
	fallback := instantBackend("from host", 0)
	fallback.sandboxed = false

	cfg := testSandboxConfig()
	cfg.AllowLocalFallback = true
	cfg.LocalFallbackMaxRisk = "low"
	o := newTestOrchestrator(t, primary, fallback, cfg)

	res, err := o.Run(context.Background(), "Get-Process", Options{Risk: domain.RiskSafe})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SandboxUsed {
		t.Error("SandboxUsed should be false when the local fallback ran the command")
	}
	if res.Stdout != "from host" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if fallback.startCount() != 1 {
		t.Errorf("fallback starts = %d, want 1", fallback.startCount())
	}
}

func TestFallbackRefusedAboveRiskCeiling(t *testing.T) {
	primary := instantBackend("", 0)
	primary.availErr = domain.ErrSandboxUnavailable
	fallback := instantBackend("", 0)
	fallback.sandboxed = false

	cfg := testSandboxConfig()
	cfg.AllowLocalFallback = true
	cfg.LocalFallbackMaxRisk = "low"
	o := newTestOrchestrator(t, primary, fallback, cfg)

	_, err := o.Run(context.Background(), "Restart-Service spooler", Options{Risk: domain.RiskHigh})
	if !errors.Is(err, domain.ErrSandboxUnavailable) {
		t.Fatalf("err = %v, want ErrSandboxUnavailable", err)
	}
	if fallback.startCount() != 0 {
		t.Errorf("fallback must not start high risk commands, starts = %d", fallback.startCount())
	}
}

func TestNoFallbackConfigured(t *testing.T) {
	primary := instantBackend("", 0)
	primary.availErr = domain.ErrSandboxUnavailable
	o := newTestOrchestrator(t, primary, nil, testSandboxConfig())

	if _, err := o.Run(context.Background(), "Get-Process", Options{}); !errors.Is(err, domain.ErrSandboxUnavailable) {
		t.Errorf("err = %v, want ErrSandboxUnavailable", err)
	}
}

// --- Queueing ---

func TestQueueFullRejects(t *testing.T) {
	cfg := testSandboxConfig()
	cfg.PoolSize = 1
	cfg.QueueSize = 1
	o := newTestOrchestrator(t, sleeperBackend(10*time.Second), nil, cfg)

	running, err := o.Submit(context.Background(), "Start-Sleep -Seconds 10", Options{})
	if err != nil {
		t.Fatalf("Submit running: %v", err)
	}
	waitForState(t, o, running, domain.StateRunning)

	if _, err := o.Submit(context.Background(), "queued", Options{}); err != nil {
		t.Fatalf("Submit queued: %v", err)
	}
	if _, err := o.Submit(context.Background(), "overflow", Options{}); !errors.Is(err, domain.ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
}

func TestWaitUnknownExecution(t *testing.T) {
	o := newTestOrchestrator(t, instantBackend("", 0), nil, testSandboxConfig())

	if _, err := o.Wait(context.Background(), "no-such-id"); !errors.Is(err, domain.ErrUnknownExecution) {
		t.Errorf("err = %v, want ErrUnknownExecution", err)
	}
}

// --- Status and output ---

func TestStatusWhileRunningShowsPartialOutput(t *testing.T) {
	o := newTestOrchestrator(t, sleeperBackend(10*time.Second), nil, testSandboxConfig())

	id, err := o.Submit(context.Background(), "Start-Sleep -Seconds 10", Options{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForState(t, o, id, domain.StateRunning)

	st, err := o.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Stdout != "partial" {
		t.Errorf("live stdout = %q, want %q", st.Stdout, "partial")
	}
	if st.Result != nil {
		t.Error("Result must be nil while running")
	}
	if err := o.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
}

func TestTruncationFlagPropagates(t *testing.T) {
	primary := &fakeBackend{
		name:      "fake",
		sandboxed: true,
		make: func(spec StartSpec) *fakeHandle {
			h := newFakeHandle("clipped", 0, time.Millisecond)
			h.truncOut = true
			return h
		},
	}
	o := newTestOrchestrator(t, primary, nil, testSandboxConfig())

	res, err := o.Run(context.Background(), "Get-ChildItem -Recurse", Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated should be true when either stream overflowed")
	}
}

func TestActiveCount(t *testing.T) {
	o := newTestOrchestrator(t, sleeperBackend(10*time.Second), nil, testSandboxConfig())

	id, err := o.Submit(context.Background(), "Start-Sleep -Seconds 10", Options{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForState(t, o, id, domain.StateRunning)
	if n := o.Active(); n != 1 {
		t.Errorf("Active() = %d, want 1", n)
	}
	if err := o.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := o.Wait(context.Background(), id); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n := o.Active(); n != 0 {
		t.Errorf("Active() = %d after finish, want 0", n)
	}
}

// --- Shutdown ---

func TestCloseKillsRunningExecutions(t *testing.T) {
	cfg := testSandboxConfig()
	o := NewWithBackends(cfg, sleeperBackend(10*time.Second), nil, testLogger())

	id, err := o.Submit(context.Background(), "Start-Sleep -Seconds 10", Options{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForState(t, o, id, domain.StateRunning)

	done := make(chan struct{})
	go func() {
		o.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	st, err := o.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != domain.StateKilled {
		t.Errorf("state after Close = %s, want %s", st.State, domain.StateKilled)
	}

	if _, err := o.Submit(context.Background(), "Get-Process", Options{}); !errors.Is(err, domain.ErrSandboxUnavailable) {
		t.Errorf("Submit after Close: err = %v, want ErrSandboxUnavailable", err)
	}
}

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

// statusRetention is how long finished executions stay queryable in memory.
// The audit log is the durable record; this map only serves live status calls.
const statusRetention = 15 * time.Minute

// Options adjust a single execution relative to the configured defaults.
type Options struct {
	TimeoutSeconds   int
	WorkingDirectory string
	Risk             domain.RiskLevel
}

// Status is a point-in-time view of one execution. Stdout and Stderr carry
// partial output while the execution is still running.
type Status struct {
	ID      string
	Command string
	State   domain.ExecutionState
	Stdout  string
	Stderr  string
	Result  *domain.SandboxResult
	Err     error
}

type execution struct {
	id      string
	command string
	cfg     domain.ExecutionConfig
	risk    domain.RiskLevel

	mu       sync.Mutex
	state    domain.ExecutionState
	handle   Handle
	cancel   context.CancelFunc
	killed   bool
	started  time.Time
	finished time.Time
	result   *domain.SandboxResult
	err      error

	done chan struct{}
}

// Orchestrator owns a worker pool that runs submitted commands through a
// sandbox backend, enforcing the timeout, output cap and kill semantics.
type Orchestrator struct {
	cfg      config.SandboxConfig
	primary  Backend
	fallback Backend
	maxRisk  domain.RiskLevel
	logger   *slog.Logger

	base     context.Context
	stopBase context.CancelFunc

	mu     sync.Mutex
	execs  map[string]*execution
	closed bool

	queue chan *execution
	wg    sync.WaitGroup
}

// New wires backends from configuration: Docker when the sandbox is enabled,
// the host shell otherwise. The local fallback is only attached when
// explicitly allowed.
func New(cfg config.SandboxConfig, logger *slog.Logger) *Orchestrator {
	var primary, fallback Backend
	if cfg.Enabled {
		primary = NewDockerBackend(cfg, logger)
		if cfg.AllowLocalFallback {
			fallback = NewLocalBackend(cfg, logger)
		}
	} else {
		primary = NewLocalBackend(cfg, logger)
	}
	return NewWithBackends(cfg, primary, fallback, logger)
}

// NewWithBackends builds an orchestrator over explicit backends.
func NewWithBackends(cfg config.SandboxConfig, primary, fallback Backend, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	pool := cfg.PoolSize
	if pool <= 0 {
		pool = 4
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 64
	}
	maxRisk, err := domain.ParseRiskLevel(cfg.LocalFallbackMaxRisk)
	if err != nil {
		maxRisk = domain.RiskLow
	}

	base, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:      cfg,
		primary:  primary,
		fallback: fallback,
		maxRisk:  maxRisk,
		logger:   logger,
		base:     base,
		stopBase: stop,
		execs:    make(map[string]*execution),
		queue:    make(chan *execution, queue),
	}
	for i := 0; i < pool; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	return o
}

// Sandboxed reports whether the primary backend isolates executions.
func (o *Orchestrator) Sandboxed() bool { return o.primary.Sandboxed() }

// Submit enqueues a command and returns its execution ID. The queue is
// bounded; a full queue rejects immediately rather than blocking the caller.
func (o *Orchestrator) Submit(ctx context.Context, command string, opts Options) (string, error) {
	if command == "" {
		return "", domain.ErrEmptyCommand
	}

	e := &execution{
		id:      uuid.NewString(),
		command: command,
		cfg:     o.buildConfig(opts),
		risk:    opts.Risk,
		state:   domain.StatePending,
		done:    make(chan struct{}),
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", fmt.Errorf("orchestrator closed: %w", domain.ErrSandboxUnavailable)
	}
	o.sweepLocked()
	select {
	case o.queue <- e:
		o.execs[e.id] = e
	default:
		o.mu.Unlock()
		return "", domain.ErrQueueFull
	}
	o.mu.Unlock()

	o.logger.Debug("execution queued", "execution", e.id, "timeout_s", e.cfg.TimeoutSeconds)
	return e.id, nil
}

// Run submits a command and blocks until it finishes or ctx is done.
func (o *Orchestrator) Run(ctx context.Context, command string, opts Options) (*domain.SandboxResult, error) {
	id, err := o.Submit(ctx, command, opts)
	if err != nil {
		return nil, err
	}
	return o.Wait(ctx, id)
}

// Wait blocks until the execution reaches a terminal state.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*domain.SandboxResult, error) {
	e := o.lookup(id)
	if e == nil {
		return nil, domain.ErrUnknownExecution
	}
	select {
	case <-e.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.result, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel kills a pending or running execution. Finished executions are not
// cancellable.
func (o *Orchestrator) Cancel(id string) error {
	e := o.lookup(id)
	if e == nil {
		return domain.ErrUnknownExecution
	}
	e.mu.Lock()
	if e.state.Terminal() {
		e.mu.Unlock()
		return domain.ErrExecutionFinished
	}
	e.killed = true
	h, cancel := e.handle, e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if h != nil {
		_ = h.Kill()
	}
	o.logger.Info("execution cancel requested", "execution", id)
	return nil
}

// Status returns a snapshot of one execution, including partial output while
// it is still running.
func (o *Orchestrator) Status(id string) (*Status, error) {
	e := o.lookup(id)
	if e == nil {
		return nil, domain.ErrUnknownExecution
	}
	e.mu.Lock()
	st := &Status{
		ID:      e.id,
		Command: e.command,
		State:   e.state,
		Result:  e.result,
		Err:     e.err,
	}
	h := e.handle
	e.mu.Unlock()

	if st.Result != nil {
		st.Stdout, st.Stderr = st.Result.Stdout, st.Result.Stderr
	} else if h != nil {
		st.Stdout, st.Stderr = h.Output()
	}
	return st, nil
}

// Active counts executions that have not reached a terminal state.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.execs {
		e.mu.Lock()
		if !e.state.Terminal() {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Close stops accepting work, kills running executions and waits for the
// workers to drain.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	o.stopBase()
	o.wg.Wait()
}

func (o *Orchestrator) lookup(id string) *execution {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.execs[id]
}

// sweepLocked drops finished executions past the retention window.
func (o *Orchestrator) sweepLocked() {
	cutoff := time.Now().Add(-statusRetention)
	for id, e := range o.execs {
		e.mu.Lock()
		stale := e.state.Terminal() && e.finished.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(o.execs, id)
		}
	}
}

func (o *Orchestrator) buildConfig(opts Options) domain.ExecutionConfig {
	ec := o.cfg.ExecutionConfig()
	if opts.TimeoutSeconds > 0 {
		ec.TimeoutSeconds = opts.TimeoutSeconds
	}
	if ec.TimeoutSeconds <= 0 {
		ec.TimeoutSeconds = 30
	}
	if opts.WorkingDirectory != "" {
		ec.WorkingDirectory = opts.WorkingDirectory
	}
	return ec
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for e := range o.queue {
		o.execute(e)
	}
}

func (o *Orchestrator) execute(e *execution) {
	e.mu.Lock()
	killed := e.killed
	if !killed {
		e.state = domain.StateStarting
	}
	e.mu.Unlock()

	if killed || o.base.Err() != nil {
		o.finish(e, domain.StateKilled, &domain.SandboxResult{ReturnCode: domain.ReturnCodeKilled}, nil)
		return
	}

	backend, err := o.pick(e)
	if err != nil {
		o.finish(e, domain.StateStartFailed, &domain.SandboxResult{
			ReturnCode: domain.ReturnCodeStartFailed,
			Stderr:     err.Error(),
		}, err)
		return
	}

	runCtx, cancel := context.WithTimeout(o.base, e.cfg.Timeout())
	defer cancel()
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	start := time.Now()
	h, err := backend.Start(runCtx, StartSpec{ID: e.id, Command: e.command, Config: e.cfg})
	if err != nil {
		o.finish(e, domain.StateStartFailed, &domain.SandboxResult{
			ReturnCode:  domain.ReturnCodeStartFailed,
			Stderr:      err.Error(),
			SandboxUsed: backend.Sandboxed(),
		}, err)
		return
	}

	e.mu.Lock()
	e.handle = h
	e.state = domain.StateRunning
	e.started = start
	killed = e.killed
	e.mu.Unlock()
	if killed {
		// Cancel raced the start; the handle exists now, kill it for real.
		_ = h.Kill()
	}

	ws, werr := h.Wait(runCtx)
	elapsed := time.Since(start)

	e.mu.Lock()
	killed = e.killed
	e.mu.Unlock()

	res := &domain.SandboxResult{
		Stdout:        ws.Stdout,
		Stderr:        ws.Stderr,
		ReturnCode:    ws.ExitCode,
		ExecutionTime: elapsed.Seconds(),
		SandboxUsed:   backend.Sandboxed(),
		Truncated:     ws.StdoutTruncated || ws.StderrTruncated,
	}

	switch {
	case killed:
		_ = h.Kill()
		o.reap(h, res)
		res.ReturnCode = domain.ReturnCodeKilled
		o.finish(e, domain.StateKilled, res, nil)
	case errors.Is(werr, context.DeadlineExceeded):
		_ = h.Kill()
		o.reap(h, res)
		res.TimedOut = true
		res.ReturnCode = domain.ReturnCodeTimedOut
		o.finish(e, domain.StateTimedOut, res, nil)
	case errors.Is(werr, domain.ErrSandboxUnavailable):
		res.ReturnCode = domain.ReturnCodeStartFailed
		o.finish(e, domain.StateStartFailed, res, werr)
	case werr != nil:
		// Base context canceled: shutdown.
		_ = h.Kill()
		o.reap(h, res)
		res.ReturnCode = domain.ReturnCodeKilled
		o.finish(e, domain.StateKilled, res, nil)
	default:
		o.finish(e, domain.StateCompleted, res, nil)
	}
}

// pick chooses the backend for one execution. The fallback is only eligible
// when the primary is down, fallback is configured, and the command's risk is
// within the configured ceiling.
func (o *Orchestrator) pick(e *execution) (Backend, error) {
	ctx, cancel := context.WithTimeout(o.base, 5*time.Second)
	defer cancel()

	perr := o.primary.Available(ctx)
	if perr == nil {
		return o.primary, nil
	}
	if o.fallback == nil {
		return nil, perr
	}
	if e.risk > o.maxRisk {
		return nil, fmt.Errorf("%w: local fallback refused for %s risk command", domain.ErrSandboxUnavailable, e.risk)
	}
	if ferr := o.fallback.Available(ctx); ferr != nil {
		return nil, ferr
	}
	o.logger.Warn("primary sandbox unavailable, using local fallback",
		"execution", e.id,
		"reason", perr.Error(),
	)
	return o.fallback, nil
}

// reap collects final output after a kill, bounded by the grace period.
func (o *Orchestrator) reap(h Handle, res *domain.SandboxResult) {
	grace := time.Duration(o.cfg.KillGraceSeconds) * time.Second
	if grace <= 0 {
		grace = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if ws, err := h.Wait(ctx); err == nil {
		res.Stdout, res.Stderr = ws.Stdout, ws.Stderr
		res.Truncated = ws.StdoutTruncated || ws.StderrTruncated
		return
	}
	res.Stdout, res.Stderr = h.Output()
}

func (o *Orchestrator) finish(e *execution, state domain.ExecutionState, res *domain.SandboxResult, err error) {
	e.mu.Lock()
	e.state = state
	e.result = res
	e.err = err
	e.finished = time.Now()
	e.mu.Unlock()
	close(e.done)

	o.logger.Info("execution finished",
		"execution", e.id,
		"state", string(state),
		"return_code", res.ReturnCode,
		"timed_out", res.TimedOut,
		"sandboxed", res.SandboxUsed,
		"duration_s", res.ExecutionTime,
	)
}

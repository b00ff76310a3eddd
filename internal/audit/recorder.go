package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
)

const enqueueTimeout = 5 * time.Second

// Recorder decouples callers from audit writes. Events go through a buffered
// queue to a single writer goroutine. Blocks up to 5 seconds when the queue
// is full instead of dropping.
type Recorder struct {
	sink   domain.AuditSink
	queue  chan domain.AuditEvent
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewRecorder(sink domain.AuditSink, queueSize int, logger *slog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &Recorder{
		sink:   sink,
		queue:  make(chan domain.AuditEvent, queueSize),
		logger: logger,
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Record implements domain.AuditSink. It returns once the event is queued,
// not once it is written.
func (r *Recorder) Record(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return errors.New("audit recorder closed")
	}

	select {
	case r.queue <- event:
		return nil
	default:
	}

	// Queue full: wait with timeout instead of dropping
	r.logger.Warn("audit queue full, waiting", "kind", string(event.Kind))
	timer := time.NewTimer(enqueueTimeout)
	defer timer.Stop()
	select {
	case r.queue <- event:
		return nil
	case <-timer.C:
		r.logger.Error("audit event dropped: queue full",
			"kind", string(event.Kind),
			"correlation_id", event.CorrelationID,
		)
		return errors.New("audit queue full, event dropped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for ev := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := r.sink.Record(ctx, ev); err != nil {
			r.logger.Error("audit write failed",
				"kind", string(ev.Kind),
				"correlation_id", ev.CorrelationID,
				"error", err,
			)
		}
		cancel()
	}
}

// Close flushes queued events and stops the writer.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}

// NopSink discards events. Used when auditing is disabled.
type NopSink struct{}

func (NopSink) Record(ctx context.Context, event domain.AuditEvent) error { return nil }

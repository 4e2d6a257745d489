package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/pipeline"
)

// ProcessorQueue feeds queued jobs to the orchestrator. A dispatcher pulls
// from the buffered channel and starts each run once a semaphore permit is free.
type ProcessorQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	sem  *semaphore.Weighted
	runs sync.WaitGroup
	done chan struct{}
	once sync.Once
	seq  atomic.Int64

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 10 * time.Minute,
		ch:      make(chan Job, 256),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.sem = semaphore.NewWeighted(int64(q.workers))
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		q.logger.Info("processor queue started", "workers", q.workers, "timeout", q.timeout)
		go q.dispatch()
	})
}

func (q *ProcessorQueue) dispatch() {
	defer close(q.done)
	for job := range q.ch {
		// Background never cancels, so Acquire only returns once a permit frees up.
		_ = q.sem.Acquire(context.Background(), 1)
		q.runs.Add(1)
		go func(job Job, runID int) {
			defer q.runs.Done()
			defer q.sem.Release(1)
			q.process(runID, job)
		}(job, int(q.seq.Add(1)))
	}
	q.runs.Wait()
	q.logger.Info("dispatcher stopped")
}

func (q *ProcessorQueue) process(runID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	ctx = common.WithWorkerID(ctx, runID)
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}
	log := q.logger.With("run_id", runID, "document_id", job.DocumentID, "kind", job.Kind)
	log.Debug("run started", "waited_ms", time.Since(job.SubmittedAt).Milliseconds())

	var (
		res *pipeline.Result
		err error
	)
	switch job.Kind {
	case KindRun, "":
		res, err = q.proc.RunPipeline(ctx, job.DocumentID, job.Options)
	case KindReprocess:
		res, err = q.proc.Reprocess(ctx, job.DocumentID, job.Options)
	case KindRechunk:
		res, err = q.proc.Rechunk(ctx, job.DocumentID, job.Options)
	default:
		err = common.InvalidConfigurationf("unknown job kind %q", job.Kind)
	}

	if err != nil {
		log.Error("processing failed", "kind_code", common.KindOf(err), "error", err)
		return
	}
	log.Info("processed document successfully", "chunks", res.ChunkCount, "duration_ms", res.Duration.Milliseconds())
}

// Enqueue blocks while the buffer is full, until ctx ends.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "document_id", job.DocumentID)
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued document for processing", "document_id", job.DocumentID, "kind", job.Kind)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "document_id", job.DocumentID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", job.DocumentID, ctx.Err())
	}
}

// Shutdown stops intake and waits for queued and running jobs, or for ctx.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-q.done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

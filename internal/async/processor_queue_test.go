package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/pipeline"
)

type fakeProcessor struct {
	delay time.Duration

	mu    sync.Mutex
	calls map[Kind][]uuid.UUID
	ctxOK bool

	active atomic.Int32
	peak   atomic.Int32
}

func newFakeProcessor(delay time.Duration) *fakeProcessor {
	return &fakeProcessor{delay: delay, calls: map[Kind][]uuid.UUID{}, ctxOK: true}
}

func (f *fakeProcessor) do(ctx context.Context, kind Kind, id uuid.UUID) (*pipeline.Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[kind] = append(f.calls[kind], id)
	if _, ok := ctx.Deadline(); !ok || common.WorkerIDFromContext(ctx) == 0 {
		f.ctxOK = false
	}
	return &pipeline.Result{DocumentID: id}, nil
}

func (f *fakeProcessor) RunPipeline(ctx context.Context, id uuid.UUID, _ pipeline.Options) (*pipeline.Result, error) {
	return f.do(ctx, KindRun, id)
}

func (f *fakeProcessor) Reprocess(ctx context.Context, id uuid.UUID, _ pipeline.Options) (*pipeline.Result, error) {
	return f.do(ctx, KindReprocess, id)
}

func (f *fakeProcessor) Rechunk(ctx context.Context, id uuid.UUID, _ pipeline.Options) (*pipeline.Result, error) {
	return f.do(ctx, KindRechunk, id)
}

func (f *fakeProcessor) count(kind Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[kind])
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestProcessorQueue_CapsConcurrency(t *testing.T) {
	proc := newFakeProcessor(20 * time.Millisecond)
	q := NewProcessorQueue(proc, discard(), WithWorkers(2), WithQueueSize(16), WithProcessTimeout(time.Minute))

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{DocumentID: uuid.New()}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.Equal(t, 10, proc.count(KindRun))
	assert.LessOrEqual(t, proc.peak.Load(), int32(2))
	assert.True(t, proc.ctxOK, "runs get a deadline and a worker id")
}

func TestProcessorQueue_DispatchesByKind(t *testing.T) {
	proc := newFakeProcessor(0)
	q := NewProcessorQueue(proc, discard(), WithWorkers(1))

	require.NoError(t, q.Enqueue(context.Background(), Job{DocumentID: uuid.New(), Kind: KindRun}))
	require.NoError(t, q.Enqueue(context.Background(), Job{DocumentID: uuid.New(), Kind: KindReprocess}))
	require.NoError(t, q.Enqueue(context.Background(), Job{DocumentID: uuid.New(), Kind: KindRechunk}))
	require.NoError(t, q.Enqueue(context.Background(), Job{DocumentID: uuid.New(), Kind: "bogus"}))
	q.Shutdown(context.Background())

	assert.Equal(t, 1, proc.count(KindRun))
	assert.Equal(t, 1, proc.count(KindReprocess))
	assert.Equal(t, 1, proc.count(KindRechunk))
}

func TestProcessorQueue_RejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(newFakeProcessor(0), discard())
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{DocumentID: uuid.New()})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestProcessorQueue_EnqueueHonorsContextWhenFull(t *testing.T) {
	proc := newFakeProcessor(200 * time.Millisecond)
	q := NewProcessorQueue(proc, discard(), WithWorkers(1), WithQueueSize(1))
	defer q.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var err error
	for i := 0; i < 5 && err == nil; i++ {
		err = q.Enqueue(ctx, Job{DocumentID: uuid.New()})
	}
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docreader/internal/pipeline"
)

// Kind selects which orchestrator entry point a job runs.
type Kind string

const (
	KindRun       Kind = "run"
	KindReprocess Kind = "reprocess"
	KindRechunk   Kind = "rechunk"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has begun.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one queued orchestrator call.
type Job struct {
	DocumentID  uuid.UUID
	Kind        Kind
	Options     pipeline.Options
	SubmittedAt time.Time
	RequestID   string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Processor is the orchestrator surface the queue drives.
type Processor interface {
	RunPipeline(ctx context.Context, documentID uuid.UUID, opts pipeline.Options) (*pipeline.Result, error)
	Reprocess(ctx context.Context, documentID uuid.UUID, opts pipeline.Options) (*pipeline.Result, error)
	Rechunk(ctx context.Context, documentID uuid.UUID, opts pipeline.Options) (*pipeline.Result, error)
}

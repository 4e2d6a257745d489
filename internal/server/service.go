package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/docreader/constants"
	"github.com/joseph-ayodele/docreader/internal/async"
	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/entity"
	"github.com/joseph-ayodele/docreader/internal/ingest"
	"github.com/joseph-ayodele/docreader/internal/pipeline"
)

// Pipeline is the synchronous orchestrator surface the service calls directly.
type Pipeline interface {
	Cancel(ctx context.Context, documentID uuid.UUID) error
	GetStatus(ctx context.Context, documentID uuid.UUID) (*pipeline.Status, error)
	Defaults() pipeline.Options
}

// Exporter renders chunk reports.
type Exporter interface {
	ChunksXLSX(ctx context.Context, documentID uuid.UUID) ([]byte, error)
}

// PipelineService implements docreader.v1.PipelineService over structpb messages.
// Run-type methods only enqueue; callers poll GetStatus.
type PipelineService struct {
	pipe     Pipeline
	queue    async.Queue
	exporter Exporter
	ingestor ingest.Ingestor
	logger   *zap.Logger
}

func NewPipelineService(pipe Pipeline, queue async.Queue, exporter Exporter, ingestor ingest.Ingestor, logger *zap.Logger) *PipelineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipelineService{pipe: pipe, queue: queue, exporter: exporter, ingestor: ingestor, logger: logger}
}

func (s *PipelineService) RunPipeline(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.enqueue(ctx, req, async.KindRun, func(st *pipeline.Status) error {
		if st.Document.Status != constants.DocumentUploaded {
			return common.InvalidState(fmt.Sprintf("document is %s; only %s documents can run", st.Document.Status, constants.DocumentUploaded))
		}
		return nil
	})
}

func (s *PipelineService) Reprocess(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.enqueue(ctx, req, async.KindReprocess, func(st *pipeline.Status) error {
		if !st.Document.Status.IsTerminal() && st.Document.Status != constants.DocumentUploaded {
			return common.InvalidState(fmt.Sprintf("document is %s; wait for the current run to finish", st.Document.Status))
		}
		return nil
	})
}

func (s *PipelineService) Rechunk(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.enqueue(ctx, req, async.KindRechunk, func(st *pipeline.Status) error {
		if st.Document.Status != constants.DocumentCompleted || !st.Document.HasText() {
			return common.InvalidState("only completed documents with text can be re-chunked")
		}
		return nil
	})
}

// enqueue validates the request up front so obvious mistakes fail the call
// instead of a background job.
func (s *PipelineService) enqueue(ctx context.Context, req *structpb.Struct, kind async.Kind, check func(*pipeline.Status) error) (*structpb.Struct, error) {
	id, err := documentID(req)
	if err != nil {
		return nil, err
	}
	opts, err := requestOptions(req, s.pipe.Defaults())
	if err != nil {
		return nil, common.GRPCStatus(err)
	}
	st, err := s.pipe.GetStatus(ctx, id)
	if err != nil {
		return nil, common.GRPCStatus(err)
	}
	if err := check(st); err != nil {
		return nil, common.GRPCStatus(err)
	}

	job := async.Job{
		DocumentID:  id,
		Kind:        kind,
		Options:     opts,
		SubmittedAt: time.Now(),
		RequestID:   common.RequestIDFromContext(ctx),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Warn("enqueue failed", zap.String("document_id", id.String()), zap.Error(err))
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	s.logger.Info("document queued", zap.String("document_id", id.String()), zap.String("kind", string(kind)))
	return structpb.NewStruct(map[string]any{
		"document_id": id.String(),
		"kind":        string(kind),
		"queued":      true,
	})
}

func (s *PipelineService) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := documentID(req)
	if err != nil {
		return nil, err
	}
	if err := s.pipe.Cancel(ctx, id); err != nil {
		s.logger.Warn("cancel failed", zap.String("document_id", id.String()), zap.Error(err))
		return nil, common.GRPCStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"document_id": id.String(),
		"status":      string(constants.DocumentCancelled),
	})
}

func (s *PipelineService) GetStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := documentID(req)
	if err != nil {
		return nil, err
	}
	st, err := s.pipe.GetStatus(ctx, id)
	if err != nil {
		return nil, common.GRPCStatus(err)
	}
	return structpb.NewStruct(statusMap(st))
}

func (s *PipelineService) ExportChunks(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := documentID(req)
	if err != nil {
		return nil, err
	}
	xlsx, err := s.exporter.ChunksXLSX(ctx, id)
	if err != nil {
		s.logger.Error("chunk export failed", zap.String("document_id", id.String()), zap.Error(err))
		return nil, common.GRPCStatus(err)
	}
	// []byte becomes a base64 string value
	return structpb.NewStruct(map[string]any{
		"document_id": id.String(),
		"xlsx":        xlsx,
	})
}

// IngestFile registers a local file and, unless "enqueue" is false, queues it for a run.
func (s *PipelineService) IngestFile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.ingestor == nil {
		return nil, status.Error(codes.Unimplemented, "ingest is not configured")
	}
	path := strings.TrimSpace(req.GetFields()["path"].GetStringValue())
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "path is required")
	}
	opts, err := requestOptions(req, s.pipe.Defaults())
	if err != nil {
		return nil, common.GRPCStatus(err)
	}
	r, err := s.ingestor.IngestPath(ctx, path)
	if err != nil {
		s.logger.Warn("ingest failed", zap.String("path", path), zap.Error(err))
		return nil, common.GRPCStatus(err)
	}

	queued := false
	enqueue := true
	if v, ok := req.GetFields()["enqueue"]; ok {
		enqueue = v.GetBoolValue()
	}
	if enqueue && !r.Deduplicated {
		err := s.queue.Enqueue(ctx, async.Job{
			DocumentID: r.DocumentID,
			Kind:       async.KindRun,
			Options:    opts,
			RequestID:  common.RequestIDFromContext(ctx),
		})
		if err != nil {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		queued = true
	}
	s.logger.Info("file ingested", zap.String("document_id", r.DocumentID.String()),
		zap.Bool("deduplicated", r.Deduplicated), zap.Bool("queued", queued))
	return structpb.NewStruct(map[string]any{
		"document_id":  r.DocumentID.String(),
		"locator":      r.Locator,
		"mime_type":    r.MimeType,
		"size_bytes":   r.SizeBytes,
		"deduplicated": r.Deduplicated,
		"queued":       queued,
	})
}

func documentID(req *structpb.Struct) (uuid.UUID, error) {
	raw := strings.TrimSpace(req.GetFields()["document_id"].GetStringValue())
	v := common.NewValidator().Field("document_id", raw, common.Required)
	if !v.HasErrors() {
		v.Field("document_id", raw, common.UUID)
	}
	if err := common.ValidateAndReturnError(v); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(raw), nil
}

// requestOptions overlays the optional "options" object onto the defaults.
func requestOptions(req *structpb.Struct, defaults pipeline.Options) (pipeline.Options, error) {
	v, ok := req.GetFields()["options"]
	if !ok || v.GetStructValue() == nil {
		return defaults, nil
	}
	raw, err := json.Marshal(v.GetStructValue().AsMap())
	if err != nil {
		return defaults, common.InvalidConfiguration("options: " + err.Error())
	}
	return pipeline.DecodeOptions(raw, defaults)
}

func statusMap(st *pipeline.Status) map[string]any {
	d := st.Document
	jobs := make([]any, 0, len(st.Jobs))
	for _, j := range st.Jobs {
		jobs = append(jobs, jobMap(j))
	}
	out := map[string]any{
		"document_id":     d.ID.String(),
		"filename":        d.Filename,
		"mime_type":       d.MimeType,
		"size_bytes":      d.SizeBytes,
		"storage_locator": d.StorageLocator,
		"status":          string(d.Status),
		"has_text":        d.HasText(),
		"low_quality":     d.LowQuality,
		"uploaded_at":     d.UploadedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":      d.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"chunk_count":     st.ChunkCount,
		"jobs":            jobs,
	}
	if d.PageCount != nil {
		out["page_count"] = *d.PageCount
	}
	if d.OCRConfidence != nil {
		out["ocr_confidence"] = *d.OCRConfidence
	}
	if d.ErrorMessage != nil {
		out["error"] = *d.ErrorMessage
	}
	if d.ProcessedAt != nil {
		out["processed_at"] = d.ProcessedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func jobMap(j *entity.ProcessingJob) map[string]any {
	m := map[string]any{
		"job_id":     j.ID.String(),
		"kind":       string(j.Kind),
		"status":     string(j.Status),
		"progress":   j.Progress,
		"created_at": j.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if j.Error != nil {
		m["error"] = *j.Error
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = j.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	var meta map[string]any
	if err := j.Metadata.Decode(&meta); err == nil && meta != nil {
		m["metadata"] = meta
	}
	return m
}

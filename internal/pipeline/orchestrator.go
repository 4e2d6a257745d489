// Package pipeline drives documents from upload through OCR and chunking to
// a terminal state, persisting every step through the repositories.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docreader/constants"
	"github.com/joseph-ayodele/docreader/internal/chunking"
	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/entity"
	"github.com/joseph-ayodele/docreader/internal/ocr"
	"github.com/joseph-ayodele/docreader/internal/repository"
	"github.com/joseph-ayodele/docreader/internal/storage"
)

// CancelledMessage is the error recorded on jobs stopped by a cancel.
const CancelledMessage = "cancelled"

// failureWriteTimeout bounds the writes that record a failure after the run context is gone.
const failureWriteTimeout = 10 * time.Second

// Extractor is the OCR collaborator.
type Extractor interface {
	ExtractDocument(ctx context.Context, data []byte, mimeType string, opts ocr.Options) (ocr.Extraction, error)
}

type Orchestrator struct {
	docs     repository.DocumentRepository
	jobs     repository.JobRepository
	chunks   repository.ChunkRepository
	store    storage.Reader
	ocr      Extractor
	defaults Options
	log      *slog.Logger
}

func NewOrchestrator(
	docs repository.DocumentRepository,
	jobs repository.JobRepository,
	chunks repository.ChunkRepository,
	store storage.Reader,
	extractor Extractor,
	defaults Options,
	log *slog.Logger,
) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		docs:     docs,
		jobs:     jobs,
		chunks:   chunks,
		store:    store,
		ocr:      extractor,
		defaults: defaults,
		log:      log,
	}
}

// Defaults returns the options used when a caller supplies none.
func (o *Orchestrator) Defaults() Options { return o.defaults }

// Result summarizes a finished run.
type Result struct {
	DocumentID uuid.UUID
	JobID      uuid.UUID
	Status     constants.DocumentStatus
	PageCount  int
	Confidence float64
	LowQuality bool
	ChunkCount int
	Quality    *chunking.QualityReport
	Warnings   []string
	Duration   time.Duration
}

// Status is a document with its job history and chunk count.
type Status struct {
	Document   *entity.Document
	Jobs       []*entity.ProcessingJob
	ChunkCount int
}

// RunPipeline processes an UPLOADED document to COMPLETED, or records why it failed.
func (o *Orchestrator) RunPipeline(ctx context.Context, documentID uuid.UUID, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	doc, err := o.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != constants.DocumentUploaded {
		return nil, common.InvalidState(fmt.Sprintf("document %s is %s; only %s documents can run", doc.ID, doc.Status, constants.DocumentUploaded))
	}

	meta := map[string]any{"filename": doc.Filename, "mime_type": doc.MimeType}
	if rid := common.RequestIDFromContext(ctx); rid != "" {
		meta["request_id"] = rid
	}
	if wid := common.WorkerIDFromContext(ctx); wid != 0 {
		meta["worker_id"] = wid
	}
	job, err := o.jobs.Create(ctx, doc.ID, constants.JobTextExtraction, opts, meta)
	if err != nil {
		return nil, err
	}

	log := common.LoggerFromContext(ctx, o.log).With("document_id", doc.ID, "job_id", job.ID)
	start := time.Now()
	res, err := o.run(ctx, log, doc, job.ID, opts)
	if err != nil {
		err = o.classify(ctx, doc.ID, err)
		o.recordFailure(ctx, log, doc.ID, job.ID, err)
		return nil, err
	}
	res.Duration = time.Since(start)
	log.Info("pipeline completed",
		"pages", res.PageCount,
		"confidence", res.Confidence,
		"chunks", res.ChunkCount,
		"low_quality", res.LowQuality,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, doc *entity.Document, jobID uuid.UUID, opts Options) (*Result, error) {
	if err := o.docs.SetStatus(ctx, doc.ID, constants.DocumentQueued); err != nil {
		return nil, err
	}
	if err := o.jobs.Start(ctx, jobID); err != nil {
		return nil, err
	}
	if err := o.docs.SetStatus(ctx, doc.ID, constants.DocumentProcessing); err != nil {
		return nil, err
	}

	data, err := o.store.ReadBytes(ctx, doc.StorageLocator)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	log.Debug("document bytes loaded", "bytes", len(data))
	if err := o.jobs.UpdateProgress(ctx, jobID, 10); err != nil {
		return nil, err
	}

	if err := o.docs.SetStatus(ctx, doc.ID, constants.DocumentExtractingText); err != nil {
		return nil, err
	}
	ext, err := o.ocr.ExtractDocument(ctx, data, doc.MimeType, ocr.Options{Language: opts.OCRLanguage})
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	text, confidence := ocr.Aggregate(ext.Pages)
	res := &Result{
		DocumentID: doc.ID,
		JobID:      jobID,
		PageCount:  ext.PageCount,
		Confidence: confidence,
		LowQuality: !ocr.AcceptableQuality(text, confidence),
		Warnings:   ext.Warnings,
	}
	if res.LowQuality {
		log.Warn("extracted text below quality gate", "confidence", confidence, "chars", len(text))
	}
	err = o.jobs.MergeMetadata(ctx, jobID, map[string]any{
		"ocr": map[string]any{
			"language":        ext.Language,
			"page_count":      ext.PageCount,
			"recognized":      len(ext.Pages),
			"confidence":      confidence,
			"low_quality":     res.LowQuality,
			"warnings":        ext.Warnings,
			"duration_ms":     ext.Duration.Milliseconds(),
			"page_confidence": pageConfidences(ext.Pages),
		},
	})
	if err != nil {
		return nil, err
	}
	if err := o.jobs.UpdateProgress(ctx, jobID, 75); err != nil {
		return nil, err
	}

	next := constants.DocumentCompleted
	if opts.EnableChunking {
		next = constants.DocumentChunking
	}
	err = o.docs.SaveExtraction(ctx, doc.ID, next, repository.DocumentExtraction{
		Text:       text,
		Confidence: confidence,
		PageCount:  ext.PageCount,
		LowQuality: res.LowQuality,
	})
	if err != nil {
		return nil, err
	}

	if opts.EnableChunking {
		n, report, err := o.rechunk(ctx, doc.ID, jobID, text, newPageMap(ext.Pages), opts)
		if err != nil {
			return nil, err
		}
		res.ChunkCount, res.Quality = n, report
		if err := o.docs.SetStatus(ctx, doc.ID, constants.DocumentCompleted); err != nil {
			return nil, err
		}
	}

	if err := o.jobs.Complete(ctx, jobID); err != nil {
		return nil, err
	}
	res.Status = constants.DocumentCompleted
	return res, nil
}

// rechunk splits text, swaps the stored chunk set, and records the quality report on the job.
func (o *Orchestrator) rechunk(ctx context.Context, documentID, jobID uuid.UUID, text string, pages pageMap, opts Options) (int, *chunking.QualityReport, error) {
	copts := opts.Chunking()
	parts, err := chunking.Split(text, copts)
	if err != nil {
		return 0, nil, err
	}
	norm := []rune(chunking.Normalize(text))
	rows := make([]entity.TextChunk, len(parts))
	for i, c := range parts {
		first, last := pages.span(norm, c)
		rows[i] = entity.TextChunk{
			ChunkIndex:         int64(c.Index),
			Content:            c.Content,
			StartPage:          int64(first),
			EndPage:            int64(last),
			WordCount:          int64(c.WordCount),
			CharCount:          int64(c.CharCount),
			ReadingTimeSeconds: int64(c.ReadingTimeSeconds),
		}
	}
	if err := o.chunks.ReplaceForDocument(ctx, documentID, rows); err != nil {
		return 0, nil, fmt.Errorf("store chunks: %w", err)
	}
	if err := o.jobs.UpdateProgress(ctx, jobID, 90); err != nil {
		return 0, nil, err
	}

	report := chunking.AnalyzeQuality(parts, copts)
	meta := map[string]any{
		"chunking": map[string]any{
			"chunk_count":        len(parts),
			"chunk_size":         copts.ChunkSize,
			"overlap":            copts.Overlap,
			"mean_quality":       report.MeanScore,
			"low_quality_chunks": report.LowQualityChunks,
			"average_words":      report.AverageWords,
		},
	}
	if report.Recommendation != nil {
		meta["recommendation"] = report.Recommendation
		o.log.Info("re-chunk recommended", "document_id", documentID,
			"chunk_size", report.Recommendation.ChunkSize, "reason", report.Recommendation.Reason)
	}
	if err := o.jobs.MergeMetadata(ctx, jobID, meta); err != nil {
		return 0, nil, err
	}
	return len(parts), &report, nil
}

// classify maps an expired run deadline onto the timeout kind, and a rejected
// job write onto cancellation when the document was cancelled underneath the run.
func (o *Orchestrator) classify(ctx context.Context, documentID uuid.UUID, err error) error {
	if errors.Is(err, common.ErrTimeout) || errors.Is(err, common.ErrCancelled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return common.Timeout("pipeline run exceeded its deadline", err)
	}
	if errors.Is(err, common.ErrInvalidState) && ctx.Err() == nil {
		if doc, gerr := o.docs.Get(ctx, documentID); gerr == nil && doc.Status == constants.DocumentCancelled {
			return common.Cancelled(fmt.Sprintf("document %s was cancelled", documentID))
		}
	}
	return err
}

// recordFailure fails the job and, unless the document was cancelled, the document.
// It writes on a fresh context when the run context has already ended.
func (o *Orchestrator) recordFailure(ctx context.Context, log *slog.Logger, documentID, jobID uuid.UUID, cause error) {
	wctx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
		defer cancel()
	}

	o.dropRunChunks(wctx, log, documentID)

	if errors.Is(cause, common.ErrCancelled) {
		log.Info("pipeline stopped at checkpoint: document cancelled")
		if err := o.jobs.Fail(wctx, jobID, CancelledMessage); err != nil && !errors.Is(err, common.ErrInvalidState) {
			log.Error("failed to record cancelled job", "err", err)
		}
		return
	}

	msg := cause.Error()
	log.Error("pipeline failed", "kind", common.KindOf(cause), "error", msg)
	if err := o.jobs.Fail(wctx, jobID, msg); err != nil && !errors.Is(err, common.ErrInvalidState) {
		log.Error("failed to record job failure", "err", err)
	}
	if err := o.jobs.MergeMetadata(wctx, jobID, map[string]any{"error_kind": common.KindOf(cause)}); err != nil {
		log.Warn("failed to record failure kind", "err", err)
	}
	if err := o.docs.MarkFailed(wctx, documentID, msg); err != nil {
		switch {
		case errors.Is(err, common.ErrCancelled):
			log.Info("document cancelled before failure was recorded")
		default:
			log.Error("failed to record document failure", "err", err)
		}
	}
}

// dropRunChunks removes chunks a failed run already stored. The run started from
// UPLOADED with an empty chunk set, so anything present belongs to it, unless
// another run has since completed the document.
func (o *Orchestrator) dropRunChunks(ctx context.Context, log *slog.Logger, documentID uuid.UUID) {
	if doc, err := o.docs.Get(ctx, documentID); err == nil && doc.Status == constants.DocumentCompleted {
		return
	}
	n, err := o.chunks.DeleteForDocument(ctx, documentID)
	if err != nil {
		log.Error("failed to drop chunks of the failed run", "err", err)
		return
	}
	if n > 0 {
		log.Info("dropped chunks of the failed run", "chunks", n)
	}
}

// Reprocess resets a settled document to UPLOADED, dropping its chunks, and
// runs it again. Earlier jobs are kept.
func (o *Orchestrator) Reprocess(ctx context.Context, documentID uuid.UUID, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := o.docs.Reset(ctx, documentID); err != nil {
		return nil, err
	}
	o.log.Info("document reset for reprocessing", "document_id", documentID)
	return o.RunPipeline(ctx, documentID, opts)
}

// Cancel moves a non-terminal document to CANCELLED and fails its open jobs.
// A run in flight notices at its next status write.
func (o *Orchestrator) Cancel(ctx context.Context, documentID uuid.UUID) error {
	if err := o.docs.Cancel(ctx, documentID); err != nil {
		return err
	}
	n, err := o.jobs.FailOpen(ctx, documentID, CancelledMessage)
	if err != nil {
		return err
	}
	o.log.Info("document cancelled", "document_id", documentID, "jobs_failed", n)
	return nil
}

// Rechunk re-splits the stored text of a COMPLETED document with new options.
// Page attribution is not available from stored text, so chunks report page 1.
func (o *Orchestrator) Rechunk(ctx context.Context, documentID uuid.UUID, opts Options) (*Result, error) {
	if err := opts.Chunking().Validate(); err != nil {
		return nil, err
	}
	doc, err := o.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != constants.DocumentCompleted || !doc.HasText() {
		return nil, common.InvalidState(fmt.Sprintf("document %s is %s; only completed documents with text can be re-chunked", doc.ID, doc.Status))
	}

	job, err := o.jobs.Create(ctx, doc.ID, constants.JobTextChunking, opts, map[string]any{"reason": "rechunk"})
	if err != nil {
		return nil, err
	}
	log := common.LoggerFromContext(ctx, o.log).With("document_id", doc.ID, "job_id", job.ID)
	start := time.Now()

	fail := func(err error) (*Result, error) {
		err = o.classify(ctx, doc.ID, err)
		wctx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
			defer cancel()
		}
		log.Error("rechunk failed", "kind", common.KindOf(err), "error", err)
		if ferr := o.jobs.Fail(wctx, job.ID, err.Error()); ferr != nil {
			log.Error("failed to record job failure", "err", ferr)
		}
		return nil, err
	}

	if err := o.jobs.Start(ctx, job.ID); err != nil {
		return fail(err)
	}
	n, report, err := o.rechunk(ctx, doc.ID, job.ID, *doc.ExtractedText, nil, opts)
	if err != nil {
		return fail(err)
	}
	if err := o.jobs.Complete(ctx, job.ID); err != nil {
		return fail(err)
	}

	res := &Result{
		DocumentID: doc.ID,
		JobID:      job.ID,
		Status:     doc.Status,
		ChunkCount: n,
		Quality:    report,
		LowQuality: doc.LowQuality,
		Duration:   time.Since(start),
	}
	if doc.PageCount != nil {
		res.PageCount = int(*doc.PageCount)
	}
	if doc.OCRConfidence != nil {
		res.Confidence = *doc.OCRConfidence
	}
	log.Info("rechunk completed", "chunks", n, "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// GetStatus returns the document, its jobs newest first, and how many chunks it has.
func (o *Orchestrator) GetStatus(ctx context.Context, documentID uuid.UUID) (*Status, error) {
	doc, err := o.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	jobs, err := o.jobs.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	n, err := o.chunks.CountByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &Status{Document: doc, Jobs: jobs, ChunkCount: n}, nil
}

func pageConfidences(pages []ocr.PageResult) map[string]float64 {
	out := make(map[string]float64, len(pages))
	for _, p := range pages {
		out[fmt.Sprint(p.Page)] = p.Confidence
	}
	return out
}

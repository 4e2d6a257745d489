package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docreader/constants"
	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/entity"
)

// DocumentExtraction is what a finished OCR pass stores on the document.
type DocumentExtraction struct {
	Text       string
	Confidence float64
	PageCount  int
	LowQuality bool
}

// DocumentFilter narrows List; zero values match everything.
type DocumentFilter struct {
	Status constants.DocumentStatus
	Limit  int
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) (*entity.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	FindByLocator(ctx context.Context, locator string) (*entity.Document, error)
	List(ctx context.Context, filter DocumentFilter) ([]*entity.Document, error)
	// SetStatus moves the document only if the state machine allows it from
	// its current status. A document that was cancelled meanwhile yields
	// common.ErrCancelled.
	SetStatus(ctx context.Context, id uuid.UUID, to constants.DocumentStatus) error
	// SaveExtraction stores the OCR outcome together with the move to `to`.
	SaveExtraction(ctx context.Context, id uuid.UUID, to constants.DocumentStatus, ext DocumentExtraction) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	Cancel(ctx context.Context, id uuid.UUID) error
	// Reset returns a settled document to UPLOADED and clears extraction results.
	Reset(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentRepo struct {
	db  *DB
	log *slog.Logger
}

func NewDocumentRepository(db *DB, log *slog.Logger) DocumentRepository {
	return &documentRepo{db: db, log: log}
}

var documentStatuses = []constants.DocumentStatus{
	constants.DocumentUploaded,
	constants.DocumentQueued,
	constants.DocumentProcessing,
	constants.DocumentExtractingText,
	constants.DocumentChunking,
	constants.DocumentCompleted,
	constants.DocumentFailed,
	constants.DocumentCancelled,
}

// predecessors lists every status the state machine allows into `to`.
func predecessors(to constants.DocumentStatus) []any {
	var out []any
	for _, s := range documentStatuses {
		if constants.CanTransitionDocument(s, to) {
			out = append(out, string(s))
		}
	}
	return out
}

func (r *documentRepo) Create(ctx context.Context, doc *entity.Document) (*entity.Document, error) {
	d := *doc
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = constants.DocumentUploaded
	}
	ts := now()
	if d.UploadedAt.IsZero() {
		d.UploadedAt = ts
	}
	d.UpdatedAt = ts

	q, args := entsql.Dialect(r.db.Dialect()).
		Insert(tableDocuments).
		Columns("id", "filename", "mime_type", "size_bytes", "storage_locator", "page_count",
			"status", "extracted_text", "ocr_confidence", "low_quality", "error_message",
			"uploaded_at", "processed_at", "updated_at").
		Values(d.ID, d.Filename, d.MimeType, d.SizeBytes, d.StorageLocator, d.PageCount,
			string(d.Status), d.ExtractedText, d.OCRConfidence, d.LowQuality, d.ErrorMessage,
			d.UploadedAt, d.ProcessedAt, d.UpdatedAt).
		Query()
	if err := r.db.Driver.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("document create failed", "filename", d.Filename, "err", err)
		return nil, fmt.Errorf("%w: create document: %w", common.ErrDatabase, err)
	}
	r.log.Info("document created", "document_id", d.ID, "filename", d.Filename, "mime_type", d.MimeType)
	return &d, nil
}

func (r *documentRepo) selectDocuments() *entsql.Selector {
	return entsql.Dialect(r.db.Dialect()).
		Select(columnNames(DocumentsColumns)...).
		From(entsql.Table(tableDocuments))
}

func (r *documentRepo) one(ctx context.Context, sel *entsql.Selector, what string) (*entity.Document, error) {
	q, args := sel.Limit(1).Query()
	docs, err := queryAll[entity.Document](ctx, r.db.Driver, q, args)
	if err != nil {
		return nil, fmt.Errorf("%w: load document: %w", common.ErrDatabase, err)
	}
	if len(docs) == 0 {
		return nil, common.NotFound("document " + what + " not found")
	}
	return &docs[0], nil
}

func (r *documentRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	return r.one(ctx, r.selectDocuments().Where(entsql.EQ("id", id)), id.String())
}

func (r *documentRepo) FindByLocator(ctx context.Context, locator string) (*entity.Document, error) {
	return r.one(ctx, r.selectDocuments().Where(entsql.EQ("storage_locator", locator)), locator)
}

func (r *documentRepo) List(ctx context.Context, filter DocumentFilter) ([]*entity.Document, error) {
	sel := r.selectDocuments().OrderBy(entsql.Desc("uploaded_at"))
	if filter.Status != "" {
		sel.Where(entsql.EQ("status", string(filter.Status)))
	}
	if filter.Limit > 0 {
		sel.Limit(filter.Limit)
	}
	q, args := sel.Query()
	docs, err := queryAll[entity.Document](ctx, r.db.Driver, q, args)
	if err != nil {
		r.log.Error("document list failed", "err", err)
		return nil, fmt.Errorf("%w: list documents: %w", common.ErrDatabase, err)
	}
	out := make([]*entity.Document, len(docs))
	for i := range docs {
		out[i] = &docs[i]
	}
	return out, nil
}

// transition applies upd only while the document sits in a status that may
// move to `to`, then explains a miss by re-reading the row.
func (r *documentRepo) transition(ctx context.Context, id uuid.UUID, to constants.DocumentStatus, froms []any, upd func(*entsql.UpdateBuilder)) error {
	n, err := r.update(ctx, r.db.Driver, id, to, froms, upd)
	if err != nil {
		return err
	}
	if n > 0 {
		r.log.Debug("document status updated", "document_id", id, "status", to)
		return nil
	}
	return r.explainMiss(ctx, id, to)
}

func (r *documentRepo) update(ctx context.Context, ex dialect.ExecQuerier, id uuid.UUID, to constants.DocumentStatus, froms []any, upd func(*entsql.UpdateBuilder)) (int64, error) {
	ub := entsql.Dialect(r.db.Dialect()).
		Update(tableDocuments).
		Set("status", string(to)).
		Set("updated_at", now())
	if upd != nil {
		upd(ub)
	}
	ub.Where(entsql.And(entsql.EQ("id", id), entsql.In("status", froms...)))
	q, args := ub.Query()
	n, err := execAffected(ctx, ex, q, args)
	if err != nil {
		r.log.Error("document status update failed", "document_id", id, "to", to, "err", err)
		return 0, fmt.Errorf("%w: update document: %w", common.ErrDatabase, err)
	}
	return n, nil
}

func (r *documentRepo) explainMiss(ctx context.Context, id uuid.UUID, to constants.DocumentStatus) error {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == constants.DocumentCancelled && to != constants.DocumentCancelled {
		r.log.Info("document was cancelled, refusing status change", "document_id", id, "to", to)
		return common.Cancelled(fmt.Sprintf("document %s was cancelled", id))
	}
	r.log.Warn("document status change rejected", "document_id", id, "from", cur.Status, "to", to)
	return common.InvalidState(fmt.Sprintf("document %s cannot move from %s to %s", id, cur.Status, to))
}

func (r *documentRepo) SetStatus(ctx context.Context, id uuid.UUID, to constants.DocumentStatus) error {
	return r.transition(ctx, id, to, predecessors(to), func(ub *entsql.UpdateBuilder) {
		if to == constants.DocumentCompleted {
			ub.Set("processed_at", now())
		}
	})
}

func (r *documentRepo) SaveExtraction(ctx context.Context, id uuid.UUID, to constants.DocumentStatus, ext DocumentExtraction) error {
	err := r.transition(ctx, id, to, predecessors(to), func(ub *entsql.UpdateBuilder) {
		ub.Set("extracted_text", ext.Text).
			Set("ocr_confidence", ext.Confidence).
			Set("page_count", int64(ext.PageCount)).
			Set("low_quality", ext.LowQuality)
		if to == constants.DocumentCompleted {
			ub.Set("processed_at", now())
		}
	})
	if err != nil {
		return err
	}
	r.log.Info("document extraction saved", "document_id", id, "status", to,
		"pages", ext.PageCount, "confidence", ext.Confidence, "low_quality", ext.LowQuality)
	return nil
}

func (r *documentRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	err := r.transition(ctx, id, constants.DocumentFailed, predecessors(constants.DocumentFailed), func(ub *entsql.UpdateBuilder) {
		ub.Set("error_message", message)
	})
	if err != nil {
		return err
	}
	r.log.Warn("document failed", "document_id", id, "error", message)
	return nil
}

func (r *documentRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := r.transition(ctx, id, constants.DocumentCancelled, predecessors(constants.DocumentCancelled), nil); err != nil {
		return err
	}
	r.log.Info("document cancelled", "document_id", id)
	return nil
}

// Reset moves a settled document back to UPLOADED, clearing the extraction
// and dropping its chunks in the same transaction.
func (r *documentRepo) Reset(ctx context.Context, id uuid.UUID) error {
	froms := []any{
		string(constants.DocumentUploaded),
		string(constants.DocumentCompleted),
		string(constants.DocumentFailed),
		string(constants.DocumentCancelled),
	}

	tx, err := r.db.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin reset: %w", common.ErrDatabase, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error("document reset rollback failed", "document_id", id, "err", rbErr)
		}
	}()

	n, err := r.update(ctx, tx, id, constants.DocumentUploaded, froms, func(ub *entsql.UpdateBuilder) {
		ub.SetNull("extracted_text").
			SetNull("ocr_confidence").
			SetNull("page_count").
			SetNull("processed_at").
			SetNull("error_message").
			Set("low_quality", false)
	})
	if err != nil {
		return err
	}
	if n == 0 {
		// release the connection before re-reading the row
		committed = true
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w: rollback reset: %w", common.ErrDatabase, rbErr)
		}
		return r.explainMiss(ctx, id, constants.DocumentUploaded)
	}

	q, args := entsql.Dialect(r.db.Dialect()).
		Delete(tableChunks).
		Where(entsql.EQ("document_id", id)).
		Query()
	removed, err := execAffected(ctx, tx, q, args)
	if err != nil {
		return fmt.Errorf("%w: delete chunks: %w", common.ErrDatabase, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit reset: %w", common.ErrDatabase, err)
	}
	committed = true
	r.log.Info("document reset", "document_id", id, "chunks_removed", removed)
	return nil
}

func (r *documentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	q, args := entsql.Dialect(r.db.Dialect()).
		Delete(tableDocuments).
		Where(entsql.EQ("id", id)).
		Query()
	n, err := execAffected(ctx, r.db.Driver, q, args)
	if err != nil {
		r.log.Error("document delete failed", "document_id", id, "err", err)
		return fmt.Errorf("%w: delete document: %w", common.ErrDatabase, err)
	}
	if n == 0 {
		return common.NotFound("document " + id.String() + " not found")
	}
	r.log.Info("document deleted", "document_id", id)
	return nil
}

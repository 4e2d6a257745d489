package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/entity"
)

// chunkInsertBatch keeps multi-row inserts under SQLite's bound-parameter limit.
const chunkInsertBatch = 500

type ChunkRepository interface {
	// ReplaceForDocument swaps the document's chunk set in one transaction.
	ReplaceForDocument(ctx context.Context, documentID uuid.UUID, chunks []entity.TextChunk) error
	// DeleteForDocument removes every chunk of the document and reports how many went.
	DeleteForDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.TextChunk, error)
	CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error)
}

type chunkRepo struct {
	db  *DB
	log *slog.Logger
}

func NewChunkRepository(db *DB, log *slog.Logger) ChunkRepository {
	return &chunkRepo{db: db, log: log}
}

func (r *chunkRepo) ReplaceForDocument(ctx context.Context, documentID uuid.UUID, chunks []entity.TextChunk) (err error) {
	for i, c := range chunks {
		if c.ChunkIndex != int64(i) {
			return common.InvalidConfigurationf("chunk %d has index %d; indices must be contiguous from 0", i, c.ChunkIndex)
		}
	}

	tx, err := r.db.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin chunk replace: %w", common.ErrDatabase, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			r.log.Error("chunk replace rolled back", "document_id", documentID, "err", err)
		}
	}()

	q, args := entsql.Dialect(r.db.Dialect()).
		Delete(tableChunks).
		Where(entsql.EQ("document_id", documentID)).
		Query()
	removed, err := execAffected(ctx, tx, q, args)
	if err != nil {
		return fmt.Errorf("%w: delete chunks: %w", common.ErrDatabase, err)
	}

	ts := now()
	for start := 0; start < len(chunks); start += chunkInsertBatch {
		end := min(start+chunkInsertBatch, len(chunks))
		if err = r.insertBatch(ctx, tx, documentID, chunks[start:end], ts); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit chunks: %w", common.ErrDatabase, err)
	}
	r.log.Info("chunks replaced", "document_id", documentID, "removed", removed, "inserted", len(chunks))
	return nil
}

func (r *chunkRepo) insertBatch(ctx context.Context, tx dialect.Tx, documentID uuid.UUID, batch []entity.TextChunk, ts time.Time) error {
	ib := entsql.Dialect(r.db.Dialect()).
		Insert(tableChunks).
		Columns("id", "document_id", "chunk_index", "content", "start_page", "end_page",
			"word_count", "char_count", "reading_time_seconds", "created_at")
	for _, c := range batch {
		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		ib.Values(id, documentID, c.ChunkIndex, c.Content, c.StartPage, c.EndPage,
			c.WordCount, c.CharCount, c.ReadingTimeSeconds, ts)
	}
	q, args := ib.Query()
	if err := tx.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("%w: insert chunks: %w", common.ErrDatabase, err)
	}
	return nil
}

func (r *chunkRepo) DeleteForDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	q, args := entsql.Dialect(r.db.Dialect()).
		Delete(tableChunks).
		Where(entsql.EQ("document_id", documentID)).
		Query()
	n, err := execAffected(ctx, r.db.Driver, q, args)
	if err != nil {
		r.log.Error("chunk delete failed", "document_id", documentID, "err", err)
		return 0, fmt.Errorf("%w: delete chunks: %w", common.ErrDatabase, err)
	}
	if n > 0 {
		r.log.Info("chunks deleted", "document_id", documentID, "removed", n)
	}
	return n, nil
}

func (r *chunkRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.TextChunk, error) {
	q, args := entsql.Dialect(r.db.Dialect()).
		Select(columnNames(TextChunksColumns)...).
		From(entsql.Table(tableChunks)).
		Where(entsql.EQ("document_id", documentID)).
		OrderBy(entsql.Asc("chunk_index")).
		Query()
	chunks, err := queryAll[entity.TextChunk](ctx, r.db.Driver, q, args)
	if err != nil {
		r.log.Error("chunk list failed", "document_id", documentID, "err", err)
		return nil, fmt.Errorf("%w: list chunks: %w", common.ErrDatabase, err)
	}
	out := make([]*entity.TextChunk, len(chunks))
	for i := range chunks {
		out[i] = &chunks[i]
	}
	return out, nil
}

func (r *chunkRepo) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	q, args := entsql.Dialect(r.db.Dialect()).
		Select(entsql.Count("*")).
		From(entsql.Table(tableChunks)).
		Where(entsql.EQ("document_id", documentID)).
		Query()
	n, err := queryInt(ctx, r.db.Driver, q, args)
	if err != nil {
		return 0, fmt.Errorf("%w: count chunks: %w", common.ErrDatabase, err)
	}
	return n, nil
}

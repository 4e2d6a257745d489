package repository

import (
	"context"
	"log/slog"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	tableDocuments = "documents"
	tableJobs      = "processing_jobs"
	tableChunks    = "text_chunks"
)

var longText = map[string]string{dialect.Postgres: "text"}

var (
	// DocumentsColumns holds the columns for the "documents" table.
	DocumentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "filename", Type: field.TypeString},
		{Name: "mime_type", Type: field.TypeString},
		{Name: "size_bytes", Type: field.TypeInt64},
		{Name: "storage_locator", Type: field.TypeString, SchemaType: longText},
		{Name: "page_count", Type: field.TypeInt64, Nullable: true},
		{Name: "status", Type: field.TypeString},
		{Name: "extracted_text", Type: field.TypeString, Nullable: true, SchemaType: longText},
		{Name: "ocr_confidence", Type: field.TypeFloat64, Nullable: true},
		{Name: "low_quality", Type: field.TypeBool, Default: false},
		{Name: "error_message", Type: field.TypeString, Nullable: true, SchemaType: longText},
		{Name: "uploaded_at", Type: field.TypeTime},
		{Name: "processed_at", Type: field.TypeTime, Nullable: true},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// DocumentsTable holds the schema information for the "documents" table.
	DocumentsTable = &schema.Table{
		Name:       tableDocuments,
		Columns:    DocumentsColumns,
		PrimaryKey: []*schema.Column{DocumentsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "document_status", Unique: false, Columns: []*schema.Column{DocumentsColumns[6]}},
			{Name: "document_storage_locator", Unique: false, Columns: []*schema.Column{DocumentsColumns[4]}},
		},
	}
	// ProcessingJobsColumns holds the columns for the "processing_jobs" table.
	ProcessingJobsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "kind", Type: field.TypeString},
		{Name: "status", Type: field.TypeString},
		{Name: "progress", Type: field.TypeInt64, Default: 0},
		{Name: "options", Type: field.TypeJSON, Nullable: true},
		{Name: "metadata", Type: field.TypeJSON, Nullable: true},
		{Name: "error", Type: field.TypeString, Nullable: true, SchemaType: longText},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "started_at", Type: field.TypeTime, Nullable: true},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "document_id", Type: field.TypeUUID},
	}
	// ProcessingJobsTable holds the schema information for the "processing_jobs" table.
	ProcessingJobsTable = &schema.Table{
		Name:       tableJobs,
		Columns:    ProcessingJobsColumns,
		PrimaryKey: []*schema.Column{ProcessingJobsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "processing_jobs_documents_jobs",
				Columns:    []*schema.Column{ProcessingJobsColumns[11]},
				RefColumns: []*schema.Column{DocumentsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "processingjob_document_id_created_at", Unique: false, Columns: []*schema.Column{ProcessingJobsColumns[11], ProcessingJobsColumns[7]}},
			{Name: "processingjob_status_updated_at", Unique: false, Columns: []*schema.Column{ProcessingJobsColumns[2], ProcessingJobsColumns[10]}},
		},
	}
	// TextChunksColumns holds the columns for the "text_chunks" table.
	TextChunksColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "chunk_index", Type: field.TypeInt64},
		{Name: "content", Type: field.TypeString, SchemaType: longText},
		{Name: "start_page", Type: field.TypeInt64},
		{Name: "end_page", Type: field.TypeInt64},
		{Name: "word_count", Type: field.TypeInt64},
		{Name: "char_count", Type: field.TypeInt64},
		{Name: "reading_time_seconds", Type: field.TypeInt64},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "document_id", Type: field.TypeUUID},
	}
	// TextChunksTable holds the schema information for the "text_chunks" table.
	TextChunksTable = &schema.Table{
		Name:       tableChunks,
		Columns:    TextChunksColumns,
		PrimaryKey: []*schema.Column{TextChunksColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "text_chunks_documents_chunks",
				Columns:    []*schema.Column{TextChunksColumns[9]},
				RefColumns: []*schema.Column{DocumentsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "textchunk_document_id_chunk_index", Unique: true, Columns: []*schema.Column{TextChunksColumns[9], TextChunksColumns[1]}},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		DocumentsTable,
		ProcessingJobsTable,
		TextChunksTable,
	}
)

func init() {
	ProcessingJobsTable.ForeignKeys[0].RefTable = DocumentsTable
	TextChunksTable.ForeignKeys[0].RefTable = DocumentsTable
}

// Migrate creates or updates the tables with the ent schema migrator.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	logger.Info("running schema migration", "driver", db.Dialect())
	m, err := schema.NewMigrate(db.Driver)
	if err != nil {
		logger.Error("schema migration setup failed", "error", err)
		return err
	}
	if err := m.Create(ctx, Tables...); err != nil {
		logger.Error("schema migration failed", "error", err)
		return err
	}
	logger.Info("schema migration complete")
	return nil
}

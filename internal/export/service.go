package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docreader/constants"
	"github.com/joseph-ayodele/docreader/internal/chunking"
	"github.com/joseph-ayodele/docreader/internal/entity"
	"github.com/joseph-ayodele/docreader/internal/repository"
)

const (
	SheetChunks  = "Chunks"
	SheetSummary = "Summary"

	previewLen = 140
)

// Service turns a document's chunk set into an XLSX report.
type Service struct {
	docs   repository.DocumentRepository
	jobs   repository.JobRepository
	chunks repository.ChunkRepository
	logger *slog.Logger
}

func NewService(docs repository.DocumentRepository, jobs repository.JobRepository, chunks repository.ChunkRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, jobs: jobs, chunks: chunks, logger: logger}
}

// ChunksXLSX returns a workbook with one row per chunk plus a summary sheet.
func (s *Service) ChunksXLSX(ctx context.Context, documentID uuid.UUID) ([]byte, error) {
	start := time.Now()

	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	rows, err := s.chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	jobs, err := s.jobs.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("xlsx close failed", "err", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", SheetChunks); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return nil, err
	}

	meanScore, err := writeChunks(f, rows)
	if err != nil {
		return nil, err
	}
	if err := writeSummary(f, doc, len(rows), meanScore, latestRecommendation(jobs)); err != nil {
		return nil, err
	}

	idx, _ := f.GetSheetIndex(SheetChunks)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("chunk report written",
		"document_id", documentID,
		"rows", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeChunks(f *excelize.File, rows []*entity.TextChunk) (float64, error) {
	headers := []any{"Index", "Start Page", "End Page", "Words", "Chars", "Reading Time (s)", "Quality", "Preview"}
	if err := f.SetSheetRow(SheetChunks, "A1", &headers); err != nil {
		return 0, err
	}

	var sum float64
	for i, c := range rows {
		score := chunking.Score(chunking.Chunk{
			Index:     int(c.ChunkIndex),
			Content:   c.Content,
			WordCount: int(c.WordCount),
			CharCount: int(c.CharCount),
		})
		sum += score
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		vals := []any{c.ChunkIndex, c.StartPage, c.EndPage, c.WordCount, c.CharCount, c.ReadingTimeSeconds, score, truncate(c.Content, previewLen)}
		if err := f.SetSheetRow(SheetChunks, cell, &vals); err != nil {
			return 0, err
		}
	}

	_ = f.SetColWidth(SheetChunks, "A", "F", 12)
	_ = f.SetColWidth(SheetChunks, "G", "G", 10)
	_ = f.SetColWidth(SheetChunks, "H", "H", 80)
	if len(rows) == 0 {
		return 0, nil
	}
	return sum / float64(len(rows)), nil
}

func writeSummary(f *excelize.File, doc *entity.Document, chunkCount int, meanScore float64, rec string) error {
	confidence := "n/a"
	if doc.OCRConfidence != nil {
		confidence = fmt.Sprintf("%.2f", *doc.OCRConfidence)
	}
	pages := "n/a"
	if doc.PageCount != nil {
		pages = fmt.Sprint(*doc.PageCount)
	}
	pairs := [][]any{
		{"Document", doc.ID.String()},
		{"Filename", doc.Filename},
		{"Status", string(doc.Status)},
		{"Pages", pages},
		{"OCR Confidence", confidence},
		{"Low Quality", doc.LowQuality},
		{"Chunks", chunkCount},
		{"Mean Chunk Quality", fmt.Sprintf("%.2f", meanScore)},
		{"Recommendation", rec},
	}
	for i, p := range pairs {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SheetSummary, cell, &p); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 22)
	_ = f.SetColWidth(SheetSummary, "B", "B", 60)
	return nil
}

// latestRecommendation reads the advisory left by the newest chunking pass, if any.
func latestRecommendation(jobs []*entity.ProcessingJob) string {
	for _, j := range jobs {
		if j.Status != constants.JobCompleted {
			continue
		}
		meta := j.MetadataMap()
		if _, chunked := meta["chunking"]; !chunked {
			continue
		}
		rec, ok := meta["recommendation"].(map[string]any)
		if !ok {
			return "none"
		}
		return fmt.Sprintf("re-chunk with size %v, overlap %v: %v", rec["chunk_size"], rec["overlap"], rec["reason"])
	}
	return "none"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

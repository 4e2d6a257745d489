package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docreader/internal/app"
	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		configPath = flag.String("config", os.Getenv("DOCREADER_CONFIG"), "path to a YAML config file")
		inmem      = flag.Bool("inmem", false, "use in-memory SQLite database")
		dir        = flag.String("dir", "", "directory to process documents from (required)")
		out        = flag.String("out", "", "directory for per-document chunk workbooks (defaults to <dir>/../chunks)")
		optsJSON   = flag.String("options", "", "JSON pipeline options overlay")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "chunks")
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		printError("Error: loading config: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger, *inmem)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	opts, err := pipeline.DecodeOptions([]byte(*optsJSON), a.Orchestrator.Defaults())
	if err != nil {
		printError("Error: invalid --options: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting ingestion", "dir", *dir)
	results, stats, err := a.Ingestor.IngestDirectory(ctx, *dir, true)
	if err != nil {
		logger.Error("failed to ingest directory", "error", err)
		os.Exit(1)
	}

	// deduplicated documents may already be settled; only fresh uploads run
	var ingested []uuid.UUID
	for _, r := range results {
		if r.Err == "" && !r.Deduplicated {
			ingested = append(ingested, r.DocumentID)
		}
	}
	logger.Info("ingestion complete",
		"documents_ingested", len(ingested),
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"deduplicated", stats.Deduplicated)

	if err := os.MkdirAll(*out, 0o755); err != nil {
		logger.Error("failed to create output directory", "dir", *out, "error", err)
		os.Exit(1)
	}

	processed, failures, lowQuality, chunks := 0, 0, 0, 0
	for _, id := range ingested {
		runCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.RunTimeout)
		res, err := a.Orchestrator.RunPipeline(runCtx, id, opts)
		cancel()
		if err != nil {
			logger.Error("failed to process document", "document_id", id, "kind", common.KindOf(err), "error", err)
			failures++
			continue
		}
		processed++
		chunks += res.ChunkCount
		if res.LowQuality {
			lowQuality++
		}
		if res.ChunkCount == 0 {
			continue
		}

		doc, err := a.Docs.Get(ctx, id)
		if err != nil {
			logger.Error("failed to load document", "document_id", id, "error", err)
			continue
		}
		xlsx, err := a.Exporter.ChunksXLSX(ctx, id)
		if err != nil {
			logger.Error("failed to export chunks", "document_id", id, "error", err)
			continue
		}
		path := filepath.Join(*out, workbookName(doc.Filename))
		if err := os.WriteFile(path, xlsx, 0o644); err != nil {
			logger.Error("failed to write workbook", "path", path, "error", err)
			continue
		}
		logger.Info("wrote chunk workbook", "document_id", id, "path", path, "chunks", res.ChunkCount)
	}

	logger.Info("batch processing complete",
		"documents_ingested", len(ingested),
		"documents_processed", processed,
		"failures", failures,
		"low_quality", lowQuality,
		"chunks", chunks,
		"output_dir", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents ingested: %d\n", len(ingested))
	fmt.Printf("- Documents processed: %d\n", processed)
	fmt.Printf("- Low-quality OCR: %d\n", lowQuality)
	fmt.Printf("- Chunks: %d\n", chunks)
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", *out)
}

func workbookName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." {
		base = "document"
	}
	return base + ".chunks.xlsx"
}

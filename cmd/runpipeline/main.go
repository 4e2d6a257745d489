package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docreader/internal/app"
	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/pipeline"
)

func main() {
	configPath := flag.String("config", os.Getenv("DOCREADER_CONFIG"), "path to a YAML config file")
	reprocess := flag.Bool("reprocess", false, "reset a settled document and run it again")
	rechunk := flag.Bool("rechunk", false, "re-chunk the stored text of a completed document")
	optsJSON := flag.String("options", "", `JSON options overlay, e.g. {"chunk_size": 600}`)
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		app.NewLogger(nil).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "runpipeline [flags] <document-id-uuid>")
		os.Exit(2)
	}
	docID, err := uuid.Parse(flag.Arg(0))
	if err != nil {
		logger.Error("invalid document id (must be UUID)", "arg", flag.Arg(0), "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.RunTimeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger, false)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	opts, err := pipeline.DecodeOptions([]byte(*optsJSON), a.Orchestrator.Defaults())
	if err != nil {
		logger.Error("invalid options", "error", err)
		os.Exit(2)
	}

	start := time.Now()
	var res *pipeline.Result
	switch {
	case *rechunk:
		res, err = a.Orchestrator.Rechunk(ctx, docID, opts)
	case *reprocess:
		res, err = a.Orchestrator.Reprocess(ctx, docID, opts)
	default:
		res, err = a.Orchestrator.RunPipeline(ctx, docID, opts)
	}
	if err != nil {
		logger.Error("pipeline failed", "document_id", docID, "kind", common.KindOf(err),
			"error", err, "duration_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}

	logger.Info("pipeline OK",
		"document_id", docID,
		"job_id", res.JobID,
		"pages", res.PageCount,
		"confidence", res.Confidence,
		"low_quality", res.LowQuality,
		"chunks", res.ChunkCount,
		"duration_ms", res.Duration.Milliseconds(),
	)
	if res.Quality != nil && res.Quality.Recommendation != nil {
		fmt.Printf("Recommendation: re-chunk with chunk_size=%d overlap=%d (%s)\n",
			res.Quality.Recommendation.ChunkSize, res.Quality.Recommendation.Overlap, res.Quality.Recommendation.Reason)
	}
}

// Package app wires configuration into the repositories, storage, OCR engine
// and orchestrator shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/export"
	"github.com/joseph-ayodele/docreader/internal/ingest"
	"github.com/joseph-ayodele/docreader/internal/ocr"
	"github.com/joseph-ayodele/docreader/internal/ocr/tesseract"
	"github.com/joseph-ayodele/docreader/internal/pipeline"
	"github.com/joseph-ayodele/docreader/internal/repository"
	"github.com/joseph-ayodele/docreader/internal/storage"
)

// InMemoryDSN is the SQLite database used by --inmem runs.
const InMemoryDSN = "file:docreader?mode=memory&cache=shared"

type App struct {
	Config *common.Config
	Logger *slog.Logger

	DB     *repository.DB
	Docs   repository.DocumentRepository
	Jobs   repository.JobRepository
	Chunks repository.ChunkRepository

	Storage      storage.Reader
	Engine       *ocr.Engine
	Orchestrator *pipeline.Orchestrator
	Exporter     *export.Service
	Ingestor     *ingest.FSIngestor

	gcs *storage.GCS
}

// NewLogger builds the JSON slog logger every binary uses.
func NewLogger(cfg *common.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		level = cfg.SlogLevel()
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// New opens the database, applies the schema and builds the processing stack.
// inmem swaps the configured database for an in-memory SQLite one.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, inmem bool) (*App, error) {
	if inmem {
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = InMemoryDSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &App{Config: cfg, Logger: logger, DB: db}

	if err := repository.Migrate(ctx, db, logger); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a.Docs = repository.NewDocumentRepository(db, logger)
	a.Jobs = repository.NewJobRepository(db, logger)
	a.Chunks = repository.NewChunkRepository(db, logger)

	local := storage.NewLocal(cfg.Storage.LocalRoot, logger)
	var remote storage.Reader
	if cfg.Storage.GCSEnable {
		a.gcs, err = storage.NewGCS(ctx, cfg.Storage.GCSBucket, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		remote = a.gcs
	}
	a.Storage = storage.NewRouter(local, remote)

	a.Engine = NewEngine(cfg.OCR, logger)
	a.Orchestrator = pipeline.NewOrchestrator(a.Docs, a.Jobs, a.Chunks, a.Storage, a.Engine,
		pipeline.OptionsFromConfig(cfg.Pipeline, cfg.OCR.Language), logger)
	a.Exporter = export.NewService(a.Docs, a.Jobs, a.Chunks, logger)
	a.Ingestor = ingest.NewFSIngestor(a.Docs, cfg.Storage.LocalRoot, logger)
	return a, nil
}

// NewEngine builds the OCR engine, using the in-process recognizer when it
// was compiled in and selected.
func NewEngine(cfg common.OCRConfig, logger *slog.Logger) *ocr.Engine {
	oc := ocr.Config{
		Pdftoppm:    cfg.Pdftoppm,
		Tesseract:   cfg.Tesseract,
		Language:    cfg.Language,
		DPI:         cfg.DPI,
		BatchSize:   cfg.BatchSize,
		MaxPages:    cfg.MaxPages,
		TessdataDir: cfg.TessdataDir,
		PSM:         cfg.PSM,
		OEM:         cfg.OEM,
	}
	var opts []ocr.EngineOption
	if cfg.Backend == "gosseract" {
		if tesseract.Available {
			opts = append(opts, ocr.WithRecognizer(tesseract.NewRecognizer(oc)))
			logger.Info("using in-process tesseract recognizer")
		} else {
			logger.Warn("ocr.backend=gosseract but this binary was built without the gosseract tag; using the tesseract CLI")
		}
	}
	return ocr.NewEngine(oc, logger, opts...)
}

func (a *App) Close() {
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.Logger.Warn("failed to close gcs client", "err", err)
		}
	}
	if a.DB != nil {
		a.DB.Close(a.Logger)
	}
}

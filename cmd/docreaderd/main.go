package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/docreader/internal/app"
	"github.com/joseph-ayodele/docreader/internal/async"
	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/ingest"
	"github.com/joseph-ayodele/docreader/internal/pipeline"
	"github.com/joseph-ayodele/docreader/internal/repository"
	"github.com/joseph-ayodele/docreader/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("DOCREADER_CONFIG"), "path to a YAML config file")
	inmem := flag.Bool("inmem", false, "use an in-memory SQLite database")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		app.NewLogger(nil).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	zl, err := zap.NewProduction()
	if err != nil {
		logger.Error("failed to build zap logger", "error", err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, *inmem)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := repository.HealthCheck(ctx, a.DB, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	queue := async.NewProcessorQueue(a.Orchestrator, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.RunTimeout),
	)

	monitor := pipeline.NewMonitor(a.Jobs, cfg.Pipeline.StuckAfter, cfg.Pipeline.MonitorInterval, logger)
	go monitor.Run(ctx)

	if len(cfg.Ingest.WatchRoots) > 0 {
		if err := watchInbox(ctx, a, queue, cfg); err != nil {
			logger.Error("failed to start inbox watcher", "error", err)
			os.Exit(1)
		}
	}

	svc := server.NewPipelineService(a.Orchestrator, queue, a.Exporter, a.Ingestor, zl)
	grpcServer, hs := server.NewGRPCServer(svc, zl)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	logger.Info("docreaderd listening", "addr", cfg.Server.GRPCAddr, "workers", cfg.Pipeline.Workers)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	hs.Shutdown()
	grpcServer.GracefulStop()

	drain, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.RunTimeout+30*time.Second)
	defer cancel()
	queue.Shutdown(drain)
}

// watchInbox ingests every new file under the watch roots and queues a run for it.
func watchInbox(ctx context.Context, a *app.App, queue async.Queue, cfg *common.Config) error {
	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       cfg.Ingest.WatchRoots,
		InitialScan: cfg.Ingest.InitialScan,
		Debounce:    cfg.Ingest.Debounce,
		Logger:      a.Logger,
	})
	if err != nil {
		return err
	}
	defaults := a.Orchestrator.Defaults()
	go func() {
		for {
			select {
			case path, ok := <-events:
				if !ok {
					return
				}
				r, err := a.Ingestor.IngestPath(ctx, path)
				if err != nil {
					a.Logger.Warn("watched file not ingested", "path", path, "error", err)
					continue
				}
				if r.Deduplicated {
					continue
				}
				job := async.Job{DocumentID: r.DocumentID, Kind: async.KindRun, Options: defaults}
				if err := queue.Enqueue(ctx, job); err != nil {
					a.Logger.Warn("watched file not queued", "document_id", r.DocumentID, "error", err)
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				a.Logger.Warn("inbox watcher error", "error", err)
			}
		}
	}()
	return nil
}

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vytor/gazetest/internal/api"
	"github.com/vytor/gazetest/internal/config"
	"github.com/vytor/gazetest/internal/db"
	"github.com/vytor/gazetest/internal/finalize"
	"github.com/vytor/gazetest/internal/jobs"
	"github.com/vytor/gazetest/internal/logger"
	"github.com/vytor/gazetest/internal/repository/sqlite"
	"github.com/vytor/gazetest/internal/roundset"
	"github.com/vytor/gazetest/internal/services"
	"github.com/vytor/gazetest/internal/storage"
	"github.com/vytor/gazetest/internal/worker"
)

func main() {
	cfg := config.Load()

	// Initialize logger
	log := logger.New(
		logger.WithLevel(logger.ParseLevel(cfg.LogLevel)),
		logger.WithColors(true),
	)
	logger.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration: %v", err)
		os.Exit(1)
	}

	log.Info("===========================================")
	log.Info("GazeTest Server Starting")
	log.Info("===========================================")
	log.Debug("addr=%s", cfg.Addr)
	log.Debug("db_path=%s", cfg.DBPath)
	log.Debug("blob_dir=%s", cfg.BlobDir)
	log.Debug("catalog_path=%s", cfg.CatalogPath)
	log.Debug("log_level=%s", cfg.LogLevel)
	log.Debug("finalize_worker_count=%d", cfg.FinalizeWorkerCount)
	log.Debug("finalize_queue_size=%d", cfg.FinalizeQueueSize)
	log.Debug("preview=%s", cfg.Preview)
	log.Debug("sample_min_gap=%s", cfg.SampleMinGap)
	log.Debug("layout_max_attempts=%d", cfg.LayoutMaxAttempts)
	log.Debug("upload_max_retries=%d", cfg.UploadMaxRetries)
	log.Debug("upload_base_delay=%s", cfg.UploadBaseDelay)
	log.Debug("upload_concurrency=%d", cfg.UploadConcurrency)
	log.Debug("signed_url_ttl=%s", cfg.SignedURLTTL)

	// Open database
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Error("failed to open database: %v", err)
		os.Exit(1)
	}
	defer func() {
		log.Debug("closing database connection")
		database.Close()
	}()

	key := []byte(cfg.SigningKey)
	if len(key) == 0 {
		log.Warn("SIGNING_KEY not set, using an ephemeral key; signed URLs will not survive a restart")
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	blobs, err := storage.NewFSStore(cfg.BlobDir, key, storage.WithBaseURL(cfg.BaseURL))
	if err != nil {
		log.Error("failed to open blob store: %v", err)
		os.Exit(1)
	}

	catalog, err := roundset.LoadCatalog(cfg.CatalogPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("no stimulus catalog at %s; sessions need explicit rounds", cfg.CatalogPath)
		catalog = nil
	case err != nil:
		log.Error("failed to load stimulus catalog: %v", err)
		os.Exit(1)
	default:
		log.Info("stimulus catalog loaded: images=%d folders=%d", len(catalog.Images), len(catalog.Folders()))
	}

	sessionRepo := sqlite.NewSessionRepository(database.DB)
	resultRepo := sqlite.NewResultRepository(database.DB)

	finalizer := finalize.New(blobs, resultRepo, sessionRepo,
		finalize.WithMaxRetries(cfg.UploadMaxRetries),
		finalize.WithBaseDelay(cfg.UploadBaseDelay),
		finalize.WithConcurrency(cfg.UploadConcurrency),
	)

	// Initialize worker pool
	finalizePool := worker.NewPool(cfg.FinalizeWorkerCount, cfg.FinalizeQueueSize)
	queue := jobs.NewWorkerQueue(finalizePool, finalizer, nil)

	// Initialize services
	sessionService := services.NewSessionService(sessionRepo, resultRepo, queue, catalog, services.RuntimeConfig{
		Preview:           cfg.Preview,
		SampleMinGap:      cfg.SampleMinGap,
		LayoutMaxAttempts: cfg.LayoutMaxAttempts,
	})
	queue.SetOnDone(sessionService.FinalizationDone)
	reviewService := services.NewReviewService(resultRepo, blobs, cfg.SignedURLTTL)

	srv := &api.Server{
		DB:       database.DB,
		Sessions: sessionService,
		Review:   reviewService,
		Blobs:    blobs,
		Queue:    queue,
	}

	ctx, cancel := context.WithCancel(context.Background())
	finalizePool.Start(ctx)

	// Configure HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server
	go func() {
		log.Info("HTTP server listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop

	log.Info("received signal %v, initiating graceful shutdown", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Debug("shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error: %v", err)
	}

	// Running tests are aborted; finished ones still get finalized below.
	log.Debug("aborting running sessions: live=%d", sessionService.LiveCount())
	sessionService.Shutdown()

	log.Debug("draining finalize pool: pending=%d", queue.QueueSize())
	finalizePool.Stop()
	cancel()

	log.Info("===========================================")
	log.Info("GazeTest Server Stopped")
	log.Info("===========================================")
}

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/climate-risk/internal/api"
	"github.com/dvloznov/climate-risk/internal/api/handlers"
	"github.com/dvloznov/climate-risk/internal/config"
	"github.com/dvloznov/climate-risk/internal/gcs"
	"github.com/dvloznov/climate-risk/internal/jobs/inmemory"
	"github.com/dvloznov/climate-risk/internal/logger"
	"github.com/dvloznov/climate-risk/internal/pipeline"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", os.Getenv("CLIMATERISK_CONFIG"), "YAML config file (or set CLIMATERISK_CONFIG env)")
		port       = flag.String("port", "", "HTTP server port (overrides config and PORT env)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Failed to load config")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	// Initialize logger
	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline options")
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load scenario catalog")
	}
	table, err := cfg.RiskWeights()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load risk-weight table")
	}

	// Initialize result sink
	sink, err := pipeline.OpenSink(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open result sink")
	}
	var results pipeline.ResultSink
	if sink != nil {
		defer sink.Close()
		results = sink
	} else {
		log.Warn().Msg("No store driver configured - results will not be persisted")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)
	jobQueue.Workers = cfg.Server.Workers
	summaries := handlers.NewSummaryCache(cfg.Server.CacheTTL)

	worker := &handlers.RecalculationWorker{
		Store:     gcs.NewStore(),
		Sink:      results,
		Options:   opts,
		Summaries: summaries,
		Log:       log,
	}

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, worker.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	// Initialize handlers
	router := api.NewRouter(api.Handlers{
		Runs:      handlers.NewRunsHandler(jobQueue, jobStore, summaries, log),
		Reference: handlers.NewReferenceHandler(table, catalog, log),
	}, api.RouterOptions{
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,

		AllowedOrigins: cfg.Server.CORSOrigins,
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Strs("stages", opts.Stages()).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Cancel worker context
	cancelWorker()

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

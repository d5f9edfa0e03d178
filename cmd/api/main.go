package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/ynab-kubera-sync/internal/api/handlers"
	"github.com/dvloznov/ynab-kubera-sync/internal/api/middleware"
	"github.com/dvloznov/ynab-kubera-sync/internal/app"
	"github.com/dvloznov/ynab-kubera-sync/internal/config"
	"github.com/dvloznov/ynab-kubera-sync/internal/jobs"
	"github.com/dvloznov/ynab-kubera-sync/internal/jobs/inmemory"
	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		port     = flag.String("port", "8080", "HTTP server port")
		schedule = flag.Bool("schedule", false, "Also enqueue a sync every SYNC_INTERVAL")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	if cfg.APIToken == "" {
		log.Warn().Msg("SYNC_API_TOKEN is not set - API endpoints are unauthenticated")
	}

	ctx := logger.WithContext(context.Background(), log)

	svc, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize sync")
	}
	defer svc.Close()

	// One worker so runs never overlap
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(config.DefaultWorkerQueueSize, 1, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobs.SyncHandler(svc.Orchestrator)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}
	if *schedule {
		go jobs.Schedule(workerCtx, jobQueue, jobStore, cfg.SyncInterval, false)
	}

	// Initialize handlers
	syncHandler := handlers.NewSyncHandler(jobQueue, jobStore, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)
	runsHandler := handlers.NewRunsHandler(nil, log)
	if svc.History != nil {
		runsHandler = handlers.NewRunsHandler(svc.History, log)
	}

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/api/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			syncHandler.TriggerSync(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			runsHandler.ListRuns(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(cfg.APIToken, "/health")(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Cancel the in-flight run and wait for the worker to return
	cancelWorker()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

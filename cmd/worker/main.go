package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ynab-kubera-sync/internal/app"
	"github.com/dvloznov/ynab-kubera-sync/internal/config"
	"github.com/dvloznov/ynab-kubera-sync/internal/jobs"
	"github.com/dvloznov/ynab-kubera-sync/internal/jobs/inmemory"
	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
)

func main() {
	var (
		runNow = flag.Bool("run-now", true, "Run a sync immediately on start")
		fetch  = flag.Bool("fetch", false, "Refresh the YNAB snapshot before every run")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	svc, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize sync")
	}
	defer svc.Close()

	// Single worker so runs never overlap
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(config.DefaultWorkerQueueSize, 1, jobStore)

	log.Info().Dur("interval", cfg.SyncInterval).Bool("dry_run", cfg.DryRun).Msg("Starting worker service")

	handler := jobs.SyncHandler(svc.Orchestrator)
	if *fetch {
		runSync := handler
		handler = func(ctx context.Context, job *jobs.SyncJob) error {
			if _, err := svc.FetchSnapshot(ctx); err != nil {
				return err
			}
			return runSync(ctx, job)
		}
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}
	go jobs.Schedule(ctx, jobQueue, jobStore, cfg.SyncInterval, *runNow)

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Cancel context to stop the scheduler and workers
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

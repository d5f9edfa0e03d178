package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/ynab-kubera-sync/internal/app"
	"github.com/dvloznov/ynab-kubera-sync/internal/config"
	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
	"github.com/dvloznov/ynab-kubera-sync/internal/reconcile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Flags override the environment
	flag.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "YNAB accounts snapshot (local path or gs://bucket/object)")
	flag.StringVar(&cfg.MappingPath, "mapping", cfg.MappingPath, "Account mapping JSON file")
	flag.StringVar(&cfg.GroupsPath, "groups", cfg.GroupsPath, "Budget groups YAML file (optional)")
	flag.StringVar(&cfg.Kubera.PortfolioID, "portfolio", cfg.Kubera.PortfolioID, "Kubera portfolio id")
	flag.DurationVar(&cfg.Kubera.Delay, "delay", cfg.Kubera.Delay, "Pause after each Kubera write")
	flag.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Plan and log updates without writing")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fetch := flag.Bool("fetch", false, "Refresh the snapshot from YNAB before syncing")
	flag.Parse()

	log := logger.NewWithLevel(cfg.LogLevel)

	// An interrupt stops the run between writes
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	svc, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize sync")
	}
	defer svc.Close()

	if *fetch {
		if _, err := svc.FetchSnapshot(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to fetch YNAB snapshot")
		}
	}

	report, err := svc.Orchestrator.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}
	printSummary(report)
}

func printSummary(report *reconcile.Report) {
	t := report.Tally
	if report.DryRun {
		fmt.Printf("Dry run %s: %d would update, %d unchanged, %d failed\n", report.RunID, t.WouldUpdate, t.Skipped, t.Failed)
		return
	}
	fmt.Printf("Sync %s: %d updated, %d unchanged, %d failed\n", report.RunID, t.Updated, t.Skipped, t.Failed)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ynab-kubera-sync/internal/app"
	"github.com/dvloznov/ynab-kubera-sync/internal/config"
	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	switch os.Args[1] {
	case "fetch":
		runFetch(log, cfg)
	case "sync":
		runSync(log, cfg)
	case "mapped":
		runMapped(log, cfg)
	case "history":
		runHistory(log, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("YNAB to Kubera sync CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  fetch     Fetch YNAB accounts and write the snapshot")
	fmt.Println("  sync      Push changed balances to Kubera once")
	fmt.Println("  mapped    Count the Kubera items the mapping covers")
	fmt.Println("  history   Show recent sync runs from the audit dataset")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func newApp(ctx context.Context, log zerolog.Logger, cfg *config.Config) *app.App {
	svc, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	return svc
}

func runFetch(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	fs.StringVar(&cfg.SnapshotPath, "out", cfg.SnapshotPath, "Snapshot destination (local path or gs://bucket/object)")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc := newApp(ctx, log, cfg)
	defer svc.Close()

	n, err := svc.FetchSnapshot(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Fetch failed")
	}

	fmt.Printf("Wrote %d accounts to %s\n", n, cfg.SnapshotPath)
}

func runSync(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Plan and log updates without writing")
	fetch := fs.Bool("fetch", false, "Refresh the snapshot from YNAB first")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc := newApp(ctx, log, cfg)
	defer svc.Close()

	if *fetch {
		if _, err := svc.FetchSnapshot(ctx); err != nil {
			log.Fatal().Err(err).Msg("Fetch failed")
		}
	}

	report, err := svc.Orchestrator.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("\n=== Run %s ===\n", report.RunID)
	for _, r := range report.Results {
		line := fmt.Sprintf("%-8s %-40s %s", r.Status, r.Update.Label, r.Update.NewValue.StringFixed(2))
		if r.Err != nil {
			line += "  (" + r.Err.Error() + ")"
		}
		fmt.Println(line)
	}
	t := report.Tally
	fmt.Printf("\nUpdated: %d  Unchanged: %d  Failed: %d  Would update: %d\n", t.Updated, t.Skipped, t.Failed, t.WouldUpdate)
}

func runMapped(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("mapped", flag.ExitOnError)
	fs.StringVar(&cfg.MappingPath, "mapping", cfg.MappingPath, "Account mapping JSON file")
	verbose := fs.Bool("v", false, "List each mapped account")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	svc := newApp(ctx, log, cfg)
	defer svc.Close()

	mapping, err := svc.Loader.LoadMapping(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load mapping")
	}

	if *verbose {
		ids := make([]string, 0, len(mapping))
		for id := range mapping {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			e := mapping[id]
			if e.TargetItemID == "" {
				continue
			}
			fmt.Printf("%s → %s  %s (%s)\n", e.BudgetName, e.SourceAccountName, e.TargetItemID, e.CurrencyOrDefault())
		}
	}
	fmt.Printf("%d Kubera items mapped\n", mapping.MappedItemCount())
}

func runHistory(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 10, "Number of runs to show")
	fs.Parse(os.Args[2:])

	if !cfg.Audit.Enabled() {
		log.Fatal().Msg("Error: AUDIT_PROJECT_ID is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc := newApp(ctx, log, cfg)
	defer svc.Close()

	runs, err := svc.History.ListRecentRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}

	fmt.Printf("\n=== Recent runs (%d) ===\n", len(runs))
	for _, run := range runs {
		mode := ""
		if run.DryRun {
			mode = " (dry run)"
		}
		fmt.Printf("\n%s  %s%s\n", run.StartedTS.Format(time.RFC3339), run.State, mode)
		fmt.Printf("   Run:     %s\n", run.RunID)
		fmt.Printf("   Updated: %d  Unchanged: %d  Failed: %d  Would update: %d\n", run.Updated, run.Skipped, run.Failed, run.WouldUpdate)
		if run.ErrorMessage != "" {
			fmt.Printf("   Error:   %s: %s\n", run.ErrorKind, run.ErrorMessage)
		}
	}
	fmt.Println()
}

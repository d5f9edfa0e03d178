// Package app wires configuration into the sync components shared by the
// commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/ynab-kubera-sync/internal/audit"
	"github.com/dvloznov/ynab-kubera-sync/internal/config"
	"github.com/dvloznov/ynab-kubera-sync/internal/gcs"
	"github.com/dvloznov/ynab-kubera-sync/internal/kubera"
	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
	"github.com/dvloznov/ynab-kubera-sync/internal/reconcile"
	"github.com/dvloznov/ynab-kubera-sync/internal/snapshot"
	"github.com/dvloznov/ynab-kubera-sync/internal/ynab"
)

// App holds the long-lived clients for one process.
type App struct {
	Config       *config.Config
	Loader       *snapshot.Loader
	Orchestrator *reconcile.Orchestrator
	// History is nil when auditing is disabled.
	History *audit.BigQueryRecorder

	store *gcs.Store
}

// New builds an App from cfg. Cloud clients are only created when a gs://
// path or an audit project is configured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx)
	a := &App{Config: cfg}

	if usesGCS(cfg) {
		store, err := gcs.NewStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		a.store = store
	}

	var recorder reconcile.Recorder = audit.Nop{}
	if cfg.Audit.Enabled() {
		history, err := audit.NewBigQueryRecorder(ctx, cfg.Audit.ProjectID, cfg.Audit.Dataset)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
		a.History = history
		recorder = history
		log.Debug().Str("project", cfg.Audit.ProjectID).Str("dataset", cfg.Audit.Dataset).Msg("Run history enabled")
	}

	a.Loader = &snapshot.Loader{
		SnapshotPath: cfg.SnapshotPath,
		MappingPath:  cfg.MappingPath,
		GroupsPath:   cfg.GroupsPath,
	}
	if a.store != nil {
		a.Loader.Store = a.store
	}

	client := kubera.NewClient(kubera.Options{
		BaseURL:              cfg.Kubera.BaseURL,
		APIKey:               cfg.Kubera.APIKey,
		APISecret:            cfg.Kubera.APISecret,
		Timeout:              cfg.Kubera.Timeout,
		MaxRequestsPerMinute: cfg.Kubera.MaxRequestsPerMinute,
	})

	a.Orchestrator = reconcile.New(cfg, reconcile.Deps{
		Loader:    a.Loader,
		Portfolio: client,
		Recorder:  recorder,
	})
	return a, nil
}

// FetchSnapshot pulls accounts from YNAB and writes the snapshot file. It
// returns the number of accounts written.
func (a *App) FetchSnapshot(ctx context.Context) (int, error) {
	if err := a.Config.ValidateFetch(); err != nil {
		return 0, err
	}

	client := ynab.NewClient(a.Config.YNAB.BaseURL, a.Config.YNAB.Token, a.Config.YNAB.Timeout)
	accounts, err := client.FetchAccounts(ctx, a.Config.YNAB.BudgetIDs)
	if err != nil {
		return 0, fmt.Errorf("FetchSnapshot: %w", err)
	}

	var store gcs.ObjectStore
	if a.store != nil {
		store = a.store
	}
	if err := snapshot.Save(ctx, a.Config.SnapshotPath, accounts, store); err != nil {
		return 0, fmt.Errorf("FetchSnapshot: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("path", a.Config.SnapshotPath).
		Int("account_count", len(accounts)).
		Msg("Wrote accounts snapshot")
	return len(accounts), nil
}

// Close releases cloud clients.
func (a *App) Close() error {
	var errs []error
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func usesGCS(cfg *config.Config) bool {
	return gcs.IsURI(cfg.SnapshotPath) || gcs.IsURI(cfg.MappingPath) || gcs.IsURI(cfg.GroupsPath)
}

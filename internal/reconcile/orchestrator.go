// Package reconcile pushes YNAB account balances into Kubera. A run loads the
// inputs, reads the portfolio once, works out which items changed and writes
// them one by one.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/ynab-kubera-sync/internal/config"
	"github.com/dvloznov/ynab-kubera-sync/internal/domain"
	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
)

// State is the phase a run is in.
type State int

const (
	StateLoadingInputs State = iota
	StateFetchingTargetState
	StateReconciling
	StateDone
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateLoadingInputs:
		return "loading_inputs"
	case StateFetchingTargetState:
		return "fetching_target_state"
	case StateReconciling:
		return "reconciling"
	case StateDone:
		return "done"
	case StateFatal:
		return "fatal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// InputLoader supplies the accounts snapshot, mapping table and groups.
type InputLoader interface {
	Load(ctx context.Context) (*domain.Inputs, error)
}

// PortfolioService reads and writes Kubera.
type PortfolioService interface {
	FetchPortfolio(ctx context.Context, portfolioID string) ([]domain.PortfolioItem, error)
	ItemUpdater
}

// Recorder stores finished runs. Failures are logged and never change the
// run's outcome.
type Recorder interface {
	RecordRun(ctx context.Context, report *Report) error
}

// Tally counts item outcomes in a run.
type Tally struct {
	Updated     int `json:"updated"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	WouldUpdate int `json:"would_update,omitempty"`
}

// Report describes a finished run, fatal or not.
type Report struct {
	RunID       string
	State       State
	DryRun      bool
	StartedAt   time.Time
	FinishedAt  time.Time
	MappedItems int
	// Results are in planning order: snapshot order, with a group at the
	// position of its first mapped member.
	Results []ItemResult
	Tally   Tally
	// Err is the fatal error, nil when the run reached Done.
	Err error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Loader    InputLoader
	Portfolio PortfolioService
	// Sleeper defaults to TimerSleeper.
	Sleeper Sleeper
	// Recorder is optional.
	Recorder Recorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs reconciliations. Each Run is independent; nothing is
// carried over between runs.
type Orchestrator struct {
	cfg  *config.Config
	deps Deps
}

// New creates an Orchestrator for cfg.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	if deps.Sleeper == nil {
		deps.Sleeper = TimerSleeper
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{cfg: cfg, deps: deps}
}

// Run performs one reconciliation. The returned report is never nil; the
// error is non-nil only for fatal failures (configuration, inputs, or the
// portfolio read). Per-item failures are in the report's results and tally.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		State:     StateLoadingInputs,
		DryRun:    o.cfg.DryRun,
		StartedAt: o.deps.Now(),
	}
	ctx = logger.WithRun(ctx, report.RunID)
	log := logger.FromContext(ctx)

	if err := o.cfg.Validate(); err != nil {
		return o.fail(ctx, report, err)
	}

	log.Debug().Str("state", report.State.String()).Msg("Loading inputs")
	inputs, err := o.deps.Loader.Load(ctx)
	if err != nil {
		return o.fail(ctx, report, err)
	}
	report.MappedItems = inputs.Mapping.MappedItemCount()
	log.Info().Int("mapped_items", report.MappedItems).Msg("Unique Kubera items mapped")

	report.State = StateFetchingTargetState
	log.Debug().Str("state", report.State.String()).Msg("Fetching Kubera portfolio")
	items, err := o.deps.Portfolio.FetchPortfolio(ctx, o.cfg.Kubera.PortfolioID)
	if err != nil {
		return o.fail(ctx, report, err)
	}

	report.State = StateReconciling
	log.Info().Bool("dry_run", o.cfg.DryRun).Msg("Syncing YNAB accounts to Kubera")

	results, changed, slots := o.plan(ctx, inputs, items)

	dispatcher := &Dispatcher{Updater: o.deps.Portfolio, Sleeper: o.deps.Sleeper, DryRun: o.cfg.DryRun}
	sent := dispatcher.RunAll(ctx, changed, o.cfg.Kubera.Delay)
	for i, r := range sent {
		r.PreviousValue = results[slots[i]].PreviousValue
		results[slots[i]] = r
	}

	report.Results = results
	report.Tally = tally(results)
	report.State = StateDone
	report.FinishedAt = o.deps.Now()

	log.Info().
		Int("updated", report.Tally.Updated).
		Int("skipped", report.Tally.Skipped).
		Int("failed", report.Tally.Failed).
		Int("would_update", report.Tally.WouldUpdate).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Sync completed")

	o.record(ctx, report)
	return report, nil
}

// plan walks the snapshot in order and decides every candidate. It returns a
// result per candidate, the updates that need sending, and for each of those
// the index of its placeholder in results.
func (o *Orchestrator) plan(ctx context.Context, inputs *domain.Inputs, items []domain.PortfolioItem) ([]ItemResult, []domain.PendingUpdate, []int) {
	log := logger.FromContext(ctx)

	var (
		results   []ItemResult
		changed   []domain.PendingUpdate
		slots     []int
		processed = make(map[string]bool)
		emitted   = make(map[string]string)
	)

	for _, account := range inputs.Accounts {
		entry, ok := Resolve(account, inputs.Mapping)
		if !ok {
			continue
		}

		var update domain.PendingUpdate
		if _, grouped := inputs.Groups.Lookup(account.BudgetID); grouped {
			if processed[account.BudgetID] {
				continue
			}
			processed[account.BudgetID] = true
			if update, ok = AggregateGroup(ctx, account.BudgetID, inputs.Accounts, inputs.Mapping, inputs.Groups); !ok {
				continue
			}
		} else {
			update = DirectUpdate(account, entry)
		}

		if prev, dup := emitted[update.TargetItemID]; dup {
			log.Warn().
				Str("item_id", update.TargetItemID).
				Str("label", update.Label).
				Str("first_label", prev).
				Msg("Kubera item already has an update in this run, ignoring")
			continue
		}
		emitted[update.TargetItemID] = update.Label

		item, err := LookupItem(items, update.TargetItemID)
		if err != nil {
			log.Warn().
				Err(err).
				Str("item_id", update.TargetItemID).
				Str("label", update.Label).
				Msg("Mapped Kubera item not found in portfolio")
			results = append(results, ItemResult{Update: update, Status: StatusFailed, Err: err})
			continue
		}

		if !NeedsUpdate(update.NewValue, item.Value) {
			log.Info().
				Str("item_id", item.ID).
				Str("name", item.Name).
				Msg("Skipped unchanged item")
			results = append(results, ItemResult{Update: update, PreviousValue: item.Value, Status: StatusSkipped})
			continue
		}

		slots = append(slots, len(results))
		changed = append(changed, update)
		results = append(results, ItemResult{Update: update, PreviousValue: item.Value})
	}
	return results, changed, slots
}

func (o *Orchestrator) fail(ctx context.Context, report *Report, err error) (*Report, error) {
	log := logger.FromContext(ctx)

	failedIn := report.State
	report.State = StateFatal
	report.Err = err
	report.FinishedAt = o.deps.Now()
	log.Error().Err(err).Str("state", failedIn.String()).Msg("Sync aborted")

	o.record(ctx, report)
	return report, fmt.Errorf("Run: %w", err)
}

func (o *Orchestrator) record(ctx context.Context, report *Report) {
	if o.deps.Recorder == nil {
		return
	}
	if err := o.deps.Recorder.RecordRun(ctx, report); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to record sync run")
	}
}

func tally(results []ItemResult) Tally {
	var t Tally
	for _, r := range results {
		switch r.Status {
		case StatusUpdated:
			t.Updated++
		case StatusSkipped:
			t.Skipped++
		case StatusFailed:
			t.Failed++
		case StatusDryRun:
			t.WouldUpdate++
		}
	}
	return t
}

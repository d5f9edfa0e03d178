package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ynab-kubera-sync/internal/domain"
	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

// Status is the outcome of one candidate update.
type Status string

const (
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
	// StatusDryRun marks an update that would have been sent.
	StatusDryRun Status = "dry_run"
)

// ItemResult records what happened to one Kubera item in a run.
type ItemResult struct {
	Update domain.PendingUpdate
	// PreviousValue is Kubera's value before the run, zero when the item was
	// not found.
	PreviousValue decimal.Decimal
	Status        Status
	Err           error
}

// ItemUpdater writes a new value to a Kubera item.
type ItemUpdater interface {
	UpdateItem(ctx context.Context, itemID string, value decimal.Decimal) error
}

// Sleeper pauses between writes. Implementations must return early with the
// context's error when ctx is cancelled.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSleeper waits on a timer or until ctx is done.
var TimerSleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})

// Dispatcher applies pending updates to Kubera one at a time.
type Dispatcher struct {
	Updater ItemUpdater
	Sleeper Sleeper
	// DryRun logs what would be sent without calling Kubera or sleeping.
	DryRun bool
}

// Dispatch sends one update. Failures come back as API errors carrying the
// item id.
func (d *Dispatcher) Dispatch(ctx context.Context, u domain.PendingUpdate) error {
	log := logger.FromContext(ctx)

	if d.DryRun {
		log.Info().
			Str("item_id", u.TargetItemID).
			Str("label", u.Label).
			Str("amount", domain.FormatAmount(u.NewValue, u.Currency)).
			Msg("[DRY RUN] Would update Kubera item")
		return nil
	}

	if err := d.Updater.UpdateItem(ctx, u.TargetItemID, u.NewValue); err != nil {
		if _, classified := syncerr.KindOf(err); !classified {
			err = syncerr.API("Dispatch", u.TargetItemID, 0, err)
		}
		log.Warn().
			Err(err).
			Str("item_id", u.TargetItemID).
			Str("label", u.Label).
			Msg("Failed to update Kubera item")
		return err
	}

	log.Info().
		Str("item_id", u.TargetItemID).
		Str("label", u.Label).
		Str("amount", domain.FormatAmount(u.NewValue, u.Currency)).
		Msg("Updated Kubera item")
	return nil
}

// RunAll dispatches updates in order and returns one result per update.
// After every write attempt, successful or not, it waits delay before moving
// on. A failed write never stops the run. When ctx is cancelled the remaining
// updates are reported as failed with the context's error.
func (d *Dispatcher) RunAll(ctx context.Context, updates []domain.PendingUpdate, delay time.Duration) []ItemResult {
	results := make([]ItemResult, 0, len(updates))

	for i, u := range updates {
		if err := ctx.Err(); err != nil {
			return append(results, cancelled(updates[i:], err)...)
		}

		err := d.Dispatch(ctx, u)
		switch {
		case err != nil:
			results = append(results, ItemResult{Update: u, Status: StatusFailed, Err: err})
		case d.DryRun:
			results = append(results, ItemResult{Update: u, Status: StatusDryRun})
		default:
			results = append(results, ItemResult{Update: u, Status: StatusUpdated})
		}

		if d.DryRun || delay <= 0 {
			continue
		}
		if err := d.sleeper().Sleep(ctx, delay); err != nil {
			return append(results, cancelled(updates[i+1:], err)...)
		}
	}
	return results
}

func (d *Dispatcher) sleeper() Sleeper {
	if d.Sleeper == nil {
		return TimerSleeper
	}
	return d.Sleeper
}

func cancelled(updates []domain.PendingUpdate, cause error) []ItemResult {
	if cause == nil {
		cause = context.Canceled
	}
	out := make([]ItemResult, 0, len(updates))
	for _, u := range updates {
		out = append(out, ItemResult{
			Update: u,
			Status: StatusFailed,
			Err:    errors.Join(errors.New("run cancelled before dispatch"), cause),
		})
	}
	return out
}

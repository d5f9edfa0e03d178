package jobs

import (
	"context"

	"github.com/dvloznov/ynab-kubera-sync/internal/reconcile"
	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

// Runner performs one reconciliation run.
type Runner interface {
	Run(ctx context.Context) (*reconcile.Report, error)
}

// SyncHandler returns a JobHandler that runs runner once per job. Fatal
// configuration, input and signature errors are permanent; a failed
// portfolio read may be retried.
func SyncHandler(runner Runner) JobHandler {
	return func(ctx context.Context, job *SyncJob) error {
		report, err := runner.Run(ctx)
		if report != nil {
			job.RunID = report.RunID
			if report.State == reconcile.StateDone {
				t := report.Tally
				job.Tally = &t
			}
		}
		if err == nil {
			return nil
		}

		switch kind, _ := syncerr.KindOf(err); kind {
		case syncerr.KindAPI:
			return err
		default:
			return Permanent(err)
		}
	}
}

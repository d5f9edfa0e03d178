package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
)

// Schedule publishes a scheduled sync job every interval until ctx is done.
// With runNow set the first job is published immediately. A tick is skipped
// while store still holds an active job so runs never pile up behind a slow
// one; store may be nil.
func Schedule(ctx context.Context, pub Publisher, store JobStore, interval time.Duration, runNow bool) {
	log := logger.FromContext(ctx).With().Dur("interval", interval).Logger()

	publish := func() {
		if store != nil && isBusy(ctx, store) {
			log.Info().Msg("Previous sync still active, skipping scheduled run")
			return
		}
		job := &SyncJob{Trigger: TriggerScheduled}
		if err := pub.PublishSync(ctx, job); err != nil {
			log.Warn().Err(err).Msg("Failed to publish scheduled sync")
			return
		}
		log.Debug().Str("job_id", job.JobID).Msg("Published scheduled sync")
	}

	if runNow {
		publish()
	}
	if interval <= 0 {
		log.Info().Msg("Sync interval disabled, no further scheduled runs")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}

// ActiveJob returns the first job in store that has not finished, if any.
func ActiveJob(ctx context.Context, store JobStore) (*SyncJob, error) {
	all, err := store.ListJobs(ctx, JobFilter{})
	if err != nil {
		return nil, err
	}
	for _, job := range all {
		if job.Status.Active() {
			return job, nil
		}
	}
	return nil, nil
}

func isBusy(ctx context.Context, store JobStore) bool {
	job, err := ActiveJob(ctx, store)
	return err == nil && job != nil
}

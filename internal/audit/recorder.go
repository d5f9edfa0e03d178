// Package audit keeps a history of sync runs in BigQuery: one sync_runs row
// per run and one sync_items row per candidate item.
package audit

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ynab-kubera-sync/internal/logger"
	"github.com/dvloznov/ynab-kubera-sync/internal/reconcile"
)

const (
	runsTable  = "sync_runs"
	itemsTable = "sync_items"
)

// Nop discards run reports. It is used when no audit project is configured.
type Nop struct{}

func (Nop) RecordRun(ctx context.Context, report *reconcile.Report) error { return nil }

// BigQueryRecorder stores run reports in a BigQuery dataset. It holds a shared
// client for the lifetime of the process.
type BigQueryRecorder struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewBigQueryRecorder creates a recorder with its own BigQuery client.
func NewBigQueryRecorder(ctx context.Context, projectID, datasetID string) (*BigQueryRecorder, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRecorder: creating client: %w", err)
	}
	return &BigQueryRecorder{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryRecorder) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// RecordRun inserts the run row and its item rows.
func (r *BigQueryRecorder) RecordRun(ctx context.Context, report *reconcile.Report) error {
	log := logger.FromContext(ctx)

	run, items := BuildRows(report)
	dataset := r.client.Dataset(r.datasetID)

	if err := dataset.Table(runsTable).Inserter().Put(ctx, run); err != nil {
		return fmt.Errorf("RecordRun: inserting run row: %w", err)
	}
	if len(items) > 0 {
		if err := dataset.Table(itemsTable).Inserter().Put(ctx, items); err != nil {
			return fmt.Errorf("RecordRun: inserting %d item rows: %w", len(items), err)
		}
	}

	log.Debug().
		Str("dataset", r.datasetID).
		Int("item_rows", len(items)).
		Msg("Recorded sync run")
	return nil
}

// ListRecentRuns returns the latest runs, newest first.
func (r *BigQueryRecorder) ListRecentRuns(ctx context.Context, limit int) ([]*RunRow, error) {
	if limit <= 0 {
		limit = 20
	}

	q := r.client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			started_ts,
			finished_ts,
			state,
			dry_run,
			mapped_items,
			updated,
			skipped,
			failed,
			would_update,
			error_kind,
			error_message
		FROM `+"`%s.%s.%s`"+`
		ORDER BY started_ts DESC
		LIMIT @limit
	`, r.projectID, r.datasetID, runsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentRuns: reading query: %w", err)
	}

	var runs []*RunRow
	for {
		var row runReadRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentRuns: iterating: %w", err)
		}
		runs = append(runs, row.toRunRow())
	}
	return runs, nil
}

// runReadRow mirrors RunRow with nullable columns that may be absent on
// older rows.
type runReadRow struct {
	RunID        string                 `bigquery:"run_id"`
	StartedTS    bigquery.NullTimestamp `bigquery:"started_ts"`
	FinishedTS   bigquery.NullTimestamp `bigquery:"finished_ts"`
	State        string                 `bigquery:"state"`
	DryRun       bool                   `bigquery:"dry_run"`
	MappedItems  bigquery.NullInt64     `bigquery:"mapped_items"`
	Updated      bigquery.NullInt64     `bigquery:"updated"`
	Skipped      bigquery.NullInt64     `bigquery:"skipped"`
	Failed       bigquery.NullInt64     `bigquery:"failed"`
	WouldUpdate  bigquery.NullInt64     `bigquery:"would_update"`
	ErrorKind    bigquery.NullString    `bigquery:"error_kind"`
	ErrorMessage bigquery.NullString    `bigquery:"error_message"`
}

func (r runReadRow) toRunRow() *RunRow {
	return &RunRow{
		RunID:        r.RunID,
		StartedTS:    r.StartedTS.Timestamp,
		FinishedTS:   r.FinishedTS,
		State:        r.State,
		DryRun:       r.DryRun,
		MappedItems:  r.MappedItems.Int64,
		Updated:      r.Updated.Int64,
		Skipped:      r.Skipped.Int64,
		Failed:       r.Failed.Int64,
		WouldUpdate:  r.WouldUpdate.Int64,
		ErrorKind:    r.ErrorKind.StringVal,
		ErrorMessage: r.ErrorMessage.StringVal,
	}
}

var (
	_ reconcile.Recorder = Nop{}
	_ reconcile.Recorder = (*BigQueryRecorder)(nil)
)

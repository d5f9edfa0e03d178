package audit

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ynab-kubera-sync/internal/reconcile"
	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

const maxErrorLen = 2000

type RunRow struct {
	RunID string `bigquery:"run_id"` // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	State  string `bigquery:"state"`   // REQUIRED: done | fatal
	DryRun bool   `bigquery:"dry_run"` // REQUIRED

	MappedItems int64 `bigquery:"mapped_items"`
	Updated     int64 `bigquery:"updated"`
	Skipped     int64 `bigquery:"skipped"`
	Failed      int64 `bigquery:"failed"`
	WouldUpdate int64 `bigquery:"would_update"`

	ErrorKind    string `bigquery:"error_kind"`    // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE
}

type ItemRow struct {
	RunID  string `bigquery:"run_id"`  // REQUIRED
	ItemID string `bigquery:"item_id"` // REQUIRED

	Position int64  `bigquery:"position"`
	Label    string `bigquery:"label"`
	BudgetID string `bigquery:"budget_id"`
	Grouped  bool   `bigquery:"grouped"`
	Currency string `bigquery:"currency"`

	PreviousValue *big.Rat `bigquery:"previous_value"` // NUMERIC
	NewValue      *big.Rat `bigquery:"new_value"`      // NUMERIC

	Status       string `bigquery:"status"`        // REQUIRED
	ErrorKind    string `bigquery:"error_kind"`    // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	RecordedTS time.Time `bigquery:"recorded_ts"`
}

// BuildRows converts a run report into one run row and one item row per
// result, in result order.
func BuildRows(report *reconcile.Report) (*RunRow, []*ItemRow) {
	run := &RunRow{
		RunID:       report.RunID,
		StartedTS:   report.StartedAt,
		State:       report.State.String(),
		DryRun:      report.DryRun,
		MappedItems: int64(report.MappedItems),
		Updated:     int64(report.Tally.Updated),
		Skipped:     int64(report.Tally.Skipped),
		Failed:      int64(report.Tally.Failed),
		WouldUpdate: int64(report.Tally.WouldUpdate),
	}
	if !report.FinishedAt.IsZero() {
		run.FinishedTS = bigquery.NullTimestamp{Timestamp: report.FinishedAt, Valid: true}
	}
	run.ErrorKind, run.ErrorMessage = describe(report.Err)

	items := make([]*ItemRow, 0, len(report.Results))
	for i, r := range report.Results {
		row := &ItemRow{
			RunID:         report.RunID,
			ItemID:        r.Update.TargetItemID,
			Position:      int64(i),
			Label:         r.Update.Label,
			BudgetID:      r.Update.BudgetID,
			Grouped:       r.Update.Grouped,
			Currency:      r.Update.Currency,
			PreviousValue: rat(r.PreviousValue),
			NewValue:      rat(r.Update.NewValue),
			Status:        string(r.Status),
			RecordedTS:    report.FinishedAt,
		}
		row.ErrorKind, row.ErrorMessage = describe(r.Err)
		items = append(items, row)
	}
	return run, items
}

func describe(err error) (kind, msg string) {
	if err == nil {
		return "", ""
	}
	if k, ok := syncerr.KindOf(err); ok {
		kind = string(k)
	}
	msg = err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return kind, msg
}

func rat(d decimal.Decimal) *big.Rat {
	return d.Rat()
}

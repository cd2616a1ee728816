package report

import (
	"context"
	"database/sql"
	"strings"

	"github.com/skylab/dashboard/internal/platform/db"
)

type queryable interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type reportRepoMySQL struct{ store *db.Store }

func NewReportRepoMySQL(store *db.Store) ReportRepository {
	return &reportRepoMySQL{store: store}
}

func (r *reportRepoMySQL) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.store
}

// DATE columns are formatted server-side so summaries round-trip as
// YYYY-MM-DD strings, matching the message payloads.
const summaryCols = `id, DATE_FORMAT(date, '%Y-%m-%d') AS date, status, total_runs, passed_runs, failed_runs, success_rate, created_at, updated_at`

const detailCols = `id, report_summary_id, app_id, total_runs, passed_runs, failed_runs, success_rate, last_run_status, last_run_at, last_failed_run_at, created_at, updated_at`

func (r *reportRepoMySQL) GetSummaryByDate(ctx context.Context, date string) (*Summary, error) {
	var s Summary
	err := r.conn(ctx).GetContext(ctx, &s,
		`SELECT `+summaryCols+` FROM e2e_report_summaries WHERE date = ?`, date)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Wrap("get summary by date", err)
	}
	return &s, nil
}

func (r *reportRepoMySQL) CreateSummary(ctx context.Context, s *Summary) error {
	if s.Status == "" {
		s.Status = StatusPending
	}
	res, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO e2e_report_summaries (date, status, total_runs, passed_runs, failed_runs, success_rate)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.Date, s.Status, s.TotalRuns, s.PassedRuns, s.FailedRuns, s.SuccessRate)
	if err != nil {
		return db.Wrap("create summary", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return db.Wrap("create summary", err)
	}
	s.ID = id
	return nil
}

func (r *reportRepoMySQL) UpdateSummary(ctx context.Context, id int64, patch SummaryPatch) error {
	var sets []string
	var args []interface{}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.TotalRuns != nil {
		sets = append(sets, "total_runs = ?")
		args = append(args, *patch.TotalRuns)
	}
	if patch.PassedRuns != nil {
		sets = append(sets, "passed_runs = ?")
		args = append(args, *patch.PassedRuns)
	}
	if patch.FailedRuns != nil {
		sets = append(sets, "failed_runs = ?")
		args = append(args, *patch.FailedRuns)
	}
	if patch.SuccessRate != nil {
		sets = append(sets, "success_rate = ?")
		args = append(args, *patch.SuccessRate)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE e2e_report_summaries SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	return db.Wrap("update summary", err)
}

func (r *reportRepoMySQL) DeleteSummary(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM e2e_report_summaries WHERE id = ?`, id)
	return db.Wrap("delete summary", err)
}

func (r *reportRepoMySQL) DeleteDetailsBySummaryID(ctx context.Context, summaryID int64) error {
	_, err := r.conn(ctx).ExecContext(ctx,
		`DELETE FROM e2e_report_details WHERE report_summary_id = ?`, summaryID)
	return db.Wrap("delete details", err)
}

func (r *reportRepoMySQL) CreateDetail(ctx context.Context, d *Detail) error {
	res, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO e2e_report_details
			(report_summary_id, app_id, total_runs, passed_runs, failed_runs, success_rate, last_run_status, last_run_at, last_failed_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ReportSummaryID, d.AppID, d.TotalRuns, d.PassedRuns, d.FailedRuns,
		d.SuccessRate, d.LastRunStatus, d.LastRunAt, d.LastFailedRunAt)
	if err != nil {
		return db.Wrap("create detail", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return db.Wrap("create detail", err)
	}
	d.ID = id
	return nil
}

func (r *reportRepoMySQL) ListDetailsBySummaryID(ctx context.Context, summaryID int64) ([]*Detail, error) {
	var items []*Detail
	err := r.conn(ctx).SelectContext(ctx, &items,
		`SELECT `+detailCols+` FROM e2e_report_details WHERE report_summary_id = ? ORDER BY app_id ASC`,
		summaryID)
	if err != nil {
		return nil, db.Wrap("list details", err)
	}
	return items, nil
}

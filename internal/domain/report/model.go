package report

import "time"

// Summary status values. A summary starts out pending, moves to ready
// once its detail rows are committed, and to failed when a build
// attempt errors out.
const (
	StatusPending = "pending"
	StatusReady   = "ready"
	StatusFailed  = "failed"
)

// Summary is the aggregate E2E health record for one calendar date.
// There is at most one summary per date; a ready summary is committed
// and re-building that date is a no-op.
type Summary struct {
	ID          int64     `db:"id" json:"id"`
	Date        string    `db:"date" json:"date"`
	Status      string    `db:"status" json:"status"`
	TotalRuns   int       `db:"total_runs" json:"total_runs"`
	PassedRuns  int       `db:"passed_runs" json:"passed_runs"`
	FailedRuns  int       `db:"failed_runs" json:"failed_runs"`
	SuccessRate float64   `db:"success_rate" json:"success_rate"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Detail is the per-application breakdown within a Summary. A summary
// owns its details; rebuilding a date replaces them wholesale.
type Detail struct {
	ID              int64      `db:"id" json:"id"`
	ReportSummaryID int64      `db:"report_summary_id" json:"report_summary_id"`
	AppID           int64      `db:"app_id" json:"app_id"`
	TotalRuns       int        `db:"total_runs" json:"total_runs"`
	PassedRuns      int        `db:"passed_runs" json:"passed_runs"`
	FailedRuns      int        `db:"failed_runs" json:"failed_runs"`
	SuccessRate     float64    `db:"success_rate" json:"success_rate"`
	LastRunStatus   string     `db:"last_run_status" json:"last_run_status"`
	LastRunAt       time.Time  `db:"last_run_at" json:"last_run_at"`
	LastFailedRunAt *time.Time `db:"last_failed_run_at" json:"last_failed_run_at"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// SummaryPatch is a partial update of a summary's status and totals.
// Nil fields are left untouched.
type SummaryPatch struct {
	Status      *string
	TotalRuns   *int
	PassedRuns  *int
	FailedRuns  *int
	SuccessRate *float64
}

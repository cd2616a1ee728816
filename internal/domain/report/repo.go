package report

import "context"

// ReportRepository defines storage operations for report summaries and
// their per-app details. Date arguments are UTC calendar days in
// YYYY-MM-DD form. Lookups return nil without an error when no row
// matches.
type ReportRepository interface {
	GetSummaryByDate(ctx context.Context, date string) (*Summary, error)
	// CreateSummary inserts a new summary row. The date is unique; a
	// concurrent insert for the same date surfaces as a duplicate-entry
	// error the caller resolves by re-reading.
	CreateSummary(ctx context.Context, s *Summary) error
	UpdateSummary(ctx context.Context, id int64, patch SummaryPatch) error
	DeleteSummary(ctx context.Context, id int64) error
	DeleteDetailsBySummaryID(ctx context.Context, summaryID int64) error
	CreateDetail(ctx context.Context, d *Detail) error
	ListDetailsBySummaryID(ctx context.Context, summaryID int64) ([]*Detail, error)
}

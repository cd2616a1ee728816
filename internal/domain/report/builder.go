package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/skylab/dashboard/internal/platform/cypress"
	"github.com/skylab/dashboard/internal/platform/db"
)

const (
	defaultBranch = "master"
	windowDays    = 14
)

// unknownProject buckets run records that carry no project name. It
// never maps to an application, so those records are dropped with a
// warning.
const unknownProject = "unknown"

// AppInfo is the slice of application state the builder needs.
type AppInfo struct {
	ID   int64
	Name string
}

// AppDirectory resolves which applications participate in a build.
type AppDirectory interface {
	GetByID(ctx context.Context, id int64) (*AppInfo, error)
	GetWatching(ctx context.Context) ([]AppInfo, error)
}

// RunSource fetches raw run records for a set of projects over a date
// window. *cypress.Client satisfies it.
type RunSource interface {
	DailyRunsPerProject(ctx context.Context, q cypress.Query) ([]cypress.RawRun, error)
}

// TxRunner executes fn inside a single database transaction.
// *db.Store satisfies it.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// BuildRequest asks for the report of one calendar date. AppIDs narrows
// the covered applications; when empty the watching set is used.
type BuildRequest struct {
	Date       string
	AppIDs     []int64
	RequestID  string
	RetryCount int
}

// Builder materializes the per-day E2E report: it fetches up to 14 days
// of raw runs ending on the requested date, groups them into runs per
// project per run number, derives per-app statistics, and commits the
// summary and detail rows in one transaction.
//
// Building is idempotent per date: a summary that is already ready is
// left untouched, and any other state is rebuilt in place.
type Builder struct {
	reports ReportRepository
	apps    AppDirectory
	runs    RunSource
	tx      TxRunner
	logger  zerolog.Logger

	now func() time.Time
}

func NewBuilder(reports ReportRepository, apps AppDirectory, runs RunSource, tx TxRunner, logger zerolog.Logger) *Builder {
	return &Builder{
		reports: reports,
		apps:    apps,
		runs:    runs,
		tx:      tx,
		logger:  logger.With().Str("component", "report_builder").Logger(),
		now:     time.Now,
	}
}

// Build runs one report pass for req.Date. Errors are returned to the
// caller so the queue engine can apply its retry policy; when a summary
// row exists its status is moved to failed before the error surfaces.
func (b *Builder) Build(ctx context.Context, req BuildRequest) error {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return fmt.Errorf("invalid report date %q: %w", req.Date, err)
	}

	summary, err := b.ensureSummary(ctx, req.Date)
	if err != nil {
		return err
	}
	if summary == nil {
		// Already ready. Re-publishing the same date is a no-op.
		b.logger.Info().Str("date", req.Date).Str("request_id", req.RequestID).
			Msg("summary already ready, skipping build")
		return nil
	}

	apps, err := b.resolveApps(ctx, req.AppIDs)
	if err != nil {
		return b.markFailed(ctx, summary.ID, err)
	}

	var runs []cypress.RawRun
	if len(apps) > 0 {
		names := make([]string, len(apps))
		for i, a := range apps {
			names[i] = a.Name
		}
		runs, err = b.runs.DailyRunsPerProject(ctx, cypress.Query{
			Projects:  names,
			StartDate: date.AddDate(0, 0, -windowDays).Format("2006-01-02"),
			EndDate:   req.Date,
			Branch:    defaultBranch,
		})
		if err != nil {
			return b.markFailed(ctx, summary.ID, err)
		}
	}

	byProject := b.groupByProject(runs, apps)

	var totalRuns, totalPassed, totalFailed int
	err = b.tx.Transaction(ctx, func(txCtx context.Context) error {
		if err := b.reports.DeleteDetailsBySummaryID(txCtx, summary.ID); err != nil {
			return err
		}
		for _, a := range apps {
			appRuns := byProject[a.Name]
			if len(appRuns) == 0 {
				// No runs in the window, no detail row.
				continue
			}
			st := deriveStats(appRuns, b.now().UTC())
			d := &Detail{
				ReportSummaryID: summary.ID,
				AppID:           a.ID,
				TotalRuns:       st.total,
				PassedRuns:      st.passed,
				FailedRuns:      st.failed,
				SuccessRate:     st.successRate,
				LastRunStatus:   st.lastRunStatus,
				LastRunAt:       st.lastRunAt,
				LastFailedRunAt: st.lastFailedRunAt,
			}
			if err := b.reports.CreateDetail(txCtx, d); err != nil {
				return err
			}
			totalRuns += st.total
			totalPassed += st.passed
			totalFailed += st.failed
		}

		rate := 0.0
		if totalRuns > 0 {
			rate = float64(totalPassed) / float64(totalRuns)
		}
		ready := StatusReady
		return b.reports.UpdateSummary(txCtx, summary.ID, SummaryPatch{
			Status:      &ready,
			TotalRuns:   &totalRuns,
			PassedRuns:  &totalPassed,
			FailedRuns:  &totalFailed,
			SuccessRate: &rate,
		})
	})
	if err != nil {
		return b.markFailed(ctx, summary.ID, err)
	}

	b.logger.Info().Str("date", req.Date).Str("request_id", req.RequestID).
		Int("total_runs", totalRuns).Int("passed_runs", totalPassed).Int("failed_runs", totalFailed).
		Msg("report committed")
	return nil
}

// ensureSummary returns the summary row to build into, creating a
// pending one when the date has none. A nil summary with nil error
// means the date is already ready and there is nothing to do.
func (b *Builder) ensureSummary(ctx context.Context, date string) (*Summary, error) {
	summary, err := b.reports.GetSummaryByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if summary != nil {
		if summary.Status == StatusReady {
			return nil, nil
		}
		return summary, nil
	}

	summary = &Summary{Date: date, Status: StatusPending}
	if err := b.reports.CreateSummary(ctx, summary); err != nil {
		if !db.IsDuplicateEntry(err) {
			return nil, err
		}
		// Another writer created the row between the read and the
		// insert. Re-read and reuse it.
		summary, err = b.reports.GetSummaryByDate(ctx, date)
		if err != nil {
			return nil, err
		}
		if summary == nil {
			return nil, fmt.Errorf("summary for %s disappeared after duplicate insert", date)
		}
		if summary.Status == StatusReady {
			return nil, nil
		}
	}
	return summary, nil
}

// resolveApps maps the request to concrete applications. Explicit ids
// are resolved one by one with unknown ids dropped; otherwise the
// watching set is used.
func (b *Builder) resolveApps(ctx context.Context, ids []int64) ([]AppInfo, error) {
	if len(ids) == 0 {
		return b.apps.GetWatching(ctx)
	}
	var out []AppInfo
	for _, id := range ids {
		a, err := b.apps.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if a == nil {
			b.logger.Warn().Int64("app_id", id).Msg("unknown app id in build request, skipping")
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

// groupByProject buckets runs by project name, warning about projects
// that do not map to a resolved application. Records without a project
// name land in the unknown bucket and are dropped the same way.
func (b *Builder) groupByProject(runs []cypress.RawRun, apps []AppInfo) map[string][]cypress.RawRun {
	known := make(map[string]bool, len(apps))
	for _, a := range apps {
		known[a.Name] = true
	}

	byProject := make(map[string][]cypress.RawRun)
	for _, r := range runs {
		name := unknownProject
		if r.ProjectName != nil {
			name = *r.ProjectName
		}
		byProject[name] = append(byProject[name], r)
	}
	for name := range byProject {
		if !known[name] {
			b.logger.Warn().Str("project", name).Int("runs", len(byProject[name])).
				Msg("runs for project without a matching app, dropping")
			delete(byProject, name)
		}
	}
	return byProject
}

// markFailed moves the summary to failed and hands the original error
// back so the queue engine still observes the failure.
func (b *Builder) markFailed(ctx context.Context, summaryID int64, cause error) error {
	failed := StatusFailed
	if err := b.reports.UpdateSummary(ctx, summaryID, SummaryPatch{Status: &failed}); err != nil {
		b.logger.Error().Err(err).Int64("summary_id", summaryID).Msg("failed to mark summary failed")
	}
	return cause
}

type appStats struct {
	total, passed, failed int
	successRate           float64
	lastRunStatus         string
	lastRunAt             time.Time
	lastFailedRunAt       *time.Time
}

// deriveStats reduces one application's raw runs to its detail row.
// Records are partitioned by run number (records without one are
// dropped) and each group counts once, as passed or failed.
func deriveStats(runs []cypress.RawRun, now time.Time) appStats {
	groups := make(map[int64][]cypress.RawRun)
	for _, r := range runs {
		if r.RunNumber == nil {
			continue
		}
		groups[*r.RunNumber] = append(groups[*r.RunNumber], r)
	}

	numbers := make([]int64, 0, len(groups))
	for n := range groups {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] > numbers[j] })

	stats := appStats{lastRunStatus: cypress.StatusNoTests}
	for i, n := range numbers {
		group := groups[n]
		passed := groupPassed(group)
		if passed {
			stats.passed++
		} else {
			stats.failed++
		}
		if i == 0 {
			if passed {
				stats.lastRunStatus = cypress.StatusPassed
			} else {
				stats.lastRunStatus = cypress.StatusFailed
			}
			stats.lastRunAt = group[0].CreatedAt
		}
		if !passed && stats.lastFailedRunAt == nil {
			t := group[0].CreatedAt
			stats.lastFailedRunAt = &t
		}
	}

	stats.total = stats.passed + stats.failed
	if stats.total > 0 {
		stats.successRate = float64(stats.passed) / float64(stats.total)
	}
	if len(numbers) == 0 {
		stats.lastRunAt = now
	}
	return stats
}

// groupPassed reports whether every record in the group that actually
// ran tests passed. noTests records are ignored, so a group holding
// only noTests records counts as passed.
func groupPassed(group []cypress.RawRun) bool {
	for _, r := range group {
		if r.Status == cypress.StatusNoTests {
			continue
		}
		if r.Status != cypress.StatusPassed {
			return false
		}
	}
	return true
}

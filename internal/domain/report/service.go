package report

import (
	"context"
	"fmt"
	"time"
)

// Report is the read shape returned to API consumers: one summary and
// its per-app breakdown.
type Report struct {
	Summary *Summary  `json:"summary"`
	Details []*Detail `json:"details"`
}

type Service struct {
	reports ReportRepository
}

func NewService(r ReportRepository) *Service {
	return &Service{reports: r}
}

// GetReportByDate loads the report for one calendar date. Returns nil
// when the date has no summary yet.
func (s *Service) GetReportByDate(ctx context.Context, date string) (*Report, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}
	summary, err := s.reports.GetSummaryByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, nil
	}
	details, err := s.reports.ListDetailsBySummaryID(ctx, summary.ID)
	if err != nil {
		return nil, err
	}
	return &Report{Summary: summary, Details: details}, nil
}

// DeleteReportByDate removes a date's summary. Detail rows go with it
// through the cascade, and the date can then be rebuilt from scratch.
func (s *Service) DeleteReportByDate(ctx context.Context, date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}
	summary, err := s.reports.GetSummaryByDate(ctx, date)
	if err != nil {
		return err
	}
	if summary == nil {
		return nil
	}
	return s.reports.DeleteSummary(ctx, summary.ID)
}

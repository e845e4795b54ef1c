package service

import (
	"context"
	"time"

	"github.com/ticketops/sla-engine/internal/repository"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

// ComplianceReport is the read-only aggregate dashboards consume.
type ComplianceReport struct {
	From        time.Time                    `json:"from"`
	To          time.Time                    `json:"to"`
	Violations  []repository.ViolationCount  `json:"violations"`
	Escalations []repository.EscalationCount `json:"escalations"`
	Dispatches  []repository.DispatchCount   `json:"dispatches"`
}

// ReportService aggregates violations, escalations and notification logs
// over a time window. Read-only.
type ReportService struct {
	reports repository.ReportRepository
}

// NewReportService constructs the service.
func NewReportService(reports repository.ReportRepository) *ReportService {
	return &ReportService{reports: reports}
}

// Compliance builds the report for [from, to]. A zero window defaults to the
// trailing 30 days.
func (s *ReportService) Compliance(ctx context.Context, from, to time.Time) (*ComplianceReport, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}

	violations, err := s.reports.ViolationCounts(ctx, from, to)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	escalations, err := s.reports.EscalationCounts(ctx, from, to)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	dispatches, err := s.reports.DispatchCounts(ctx, from, to)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	return &ComplianceReport{
		From:        from,
		To:          to,
		Violations:  violations,
		Escalations: escalations,
		Dispatches:  dispatches,
	}, nil
}

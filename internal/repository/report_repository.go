package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ViolationCount aggregates violations by kind and severity.
type ViolationCount struct {
	Kind     string
	Severity string
	Open     int64
	Resolved int64
}

// EscalationCount aggregates escalations by reason.
type EscalationCount struct {
	Reason    string
	Manual    int64
	Automatic int64
}

// DispatchCount aggregates notification outcomes by channel and status.
type DispatchCount struct {
	Channel string
	Status  string
	Total   int64
}

// ReportRepository runs the read-only aggregations behind compliance dashboards.
type ReportRepository interface {
	ViolationCounts(ctx context.Context, from, to time.Time) ([]ViolationCount, error)
	EscalationCounts(ctx context.Context, from, to time.Time) ([]EscalationCount, error)
	DispatchCounts(ctx context.Context, from, to time.Time) ([]DispatchCount, error)
}

type reportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository instantiates repository.
func NewReportRepository(pool *pgxpool.Pool) ReportRepository {
	return &reportRepository{pool: pool}
}

func (r *reportRepository) ViolationCounts(ctx context.Context, from, to time.Time) ([]ViolationCount, error) {
	const query = `
        SELECT kind, severity,
               COUNT(*) FILTER (WHERE NOT resolved),
               COUNT(*) FILTER (WHERE resolved)
        FROM sla_violations
        WHERE detected_at BETWEEN $1 AND $2
        GROUP BY kind, severity
        ORDER BY kind, severity`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ViolationCount
	for rows.Next() {
		var c ViolationCount
		if err := rows.Scan(&c.Kind, &c.Severity, &c.Open, &c.Resolved); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *reportRepository) EscalationCounts(ctx context.Context, from, to time.Time) ([]EscalationCount, error) {
	const query = `
        SELECT reason,
               COUNT(*) FILTER (WHERE NOT automatic),
               COUNT(*) FILTER (WHERE automatic)
        FROM escalations
        WHERE created_at BETWEEN $1 AND $2
        GROUP BY reason
        ORDER BY reason`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EscalationCount
	for rows.Next() {
		var c EscalationCount
		if err := rows.Scan(&c.Reason, &c.Manual, &c.Automatic); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *reportRepository) DispatchCounts(ctx context.Context, from, to time.Time) ([]DispatchCount, error) {
	const query = `
        SELECT channel, status, COUNT(*)
        FROM notification_logs
        WHERE created_at BETWEEN $1 AND $2
        GROUP BY channel, status
        ORDER BY channel, status`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DispatchCount
	for rows.Next() {
		var c DispatchCount
		if err := rows.Scan(&c.Channel, &c.Status, &c.Total); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

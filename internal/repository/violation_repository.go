package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketops/sla-engine/internal/domain"
)

// ViolationFilter captures listing parameters.
type ViolationFilter struct {
	TicketID *string
	Kind     *domain.ViolationKind
	Severity *domain.ViolationSeverity
	Resolved *bool
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// ViolationRepository encapsulates SLA violation persistence. Insert relies
// on the partial unique index over open (ticket_id, kind) pairs so concurrent
// sweeps can never duplicate an open violation.
type ViolationRepository interface {
	// Insert stores v unless an open violation of the same kind already
	// exists for the ticket; created reports whether a row was written.
	Insert(ctx context.Context, v *domain.SlaViolation) (created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.SlaViolation, error)
	GetOpen(ctx context.Context, ticketID string, kind domain.ViolationKind) (*domain.SlaViolation, error)
	RefreshDelay(ctx context.Context, id string, delayHours float64, severity domain.ViolationSeverity) error
	MarkResolved(ctx context.Context, id string, resolvedBy *string, comment *string, at time.Time) error
	// CloseSatisfied resolves the open violation of the given kind, if any,
	// recording when the awaited ticket event actually happened.
	CloseSatisfied(ctx context.Context, ticketID string, kind domain.ViolationKind, actualAt time.Time) error
	List(ctx context.Context, filter ViolationFilter) ([]domain.SlaViolation, error)
}

type violationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository instantiates repository.
func NewViolationRepository(pool *pgxpool.Pool) ViolationRepository {
	return &violationRepository{pool: pool}
}

const violationColumns = `id, ticket_id, policy_id, kind, expected_at, actual_at,
               delay_hours, severity, resolved, resolved_by, resolved_at,
               resolution_comment, detected_at`

func (r *violationRepository) Insert(ctx context.Context, v *domain.SlaViolation) (bool, error) {
	const query = `
        INSERT INTO sla_violations (id, ticket_id, policy_id, kind, expected_at,
            delay_hours, severity, detected_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (ticket_id, kind) WHERE NOT resolved DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		v.ID,
		v.TicketID,
		v.PolicyID,
		v.Kind,
		v.ExpectedAt,
		v.DelayHours,
		v.Severity,
		v.DetectedAt,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *violationRepository) GetByID(ctx context.Context, id string) (*domain.SlaViolation, error) {
	const query = `SELECT ` + violationColumns + ` FROM sla_violations WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *violationRepository) GetOpen(ctx context.Context, ticketID string, kind domain.ViolationKind) (*domain.SlaViolation, error) {
	const query = `
        SELECT ` + violationColumns + `
        FROM sla_violations WHERE ticket_id=$1 AND kind=$2 AND NOT resolved`
	return r.fetchSingle(ctx, query, ticketID, kind)
}

func (r *violationRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.SlaViolation, error) {
	var v domain.SlaViolation
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&v.ID,
		&v.TicketID,
		&v.PolicyID,
		&v.Kind,
		&v.ExpectedAt,
		&v.ActualAt,
		&v.DelayHours,
		&v.Severity,
		&v.Resolved,
		&v.ResolvedBy,
		&v.ResolvedAt,
		&v.ResolutionComment,
		&v.DetectedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *violationRepository) RefreshDelay(ctx context.Context, id string, delayHours float64, severity domain.ViolationSeverity) error {
	const query = `
        UPDATE sla_violations SET delay_hours=$1, severity=$2
        WHERE id=$3 AND NOT resolved`
	cmd, err := r.pool.Exec(ctx, query, delayHours, severity, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *violationRepository) MarkResolved(ctx context.Context, id string, resolvedBy *string, comment *string, at time.Time) error {
	const query = `
        UPDATE sla_violations SET resolved=TRUE, resolved_by=$1, resolution_comment=$2, resolved_at=$3
        WHERE id=$4 AND NOT resolved`
	cmd, err := r.pool.Exec(ctx, query, resolvedBy, comment, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *violationRepository) CloseSatisfied(ctx context.Context, ticketID string, kind domain.ViolationKind, actualAt time.Time) error {
	const query = `
        UPDATE sla_violations
        SET resolved=TRUE, resolved_at=NOW(), actual_at=$1,
            delay_hours=GREATEST(EXTRACT(EPOCH FROM ($1 - expected_at))/3600.0, 0)
        WHERE ticket_id=$2 AND kind=$3 AND NOT resolved`
	_, err := r.pool.Exec(ctx, query, actualAt, ticketID, kind)
	return err
}

func (r *violationRepository) List(ctx context.Context, filter ViolationFilter) ([]domain.SlaViolation, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.TicketID != nil {
		args = append(args, *filter.TicketID)
		clauses = append(clauses, fmt.Sprintf("ticket_id=$%d", len(args)))
	}
	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		clauses = append(clauses, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.Severity != nil {
		args = append(args, *filter.Severity)
		clauses = append(clauses, fmt.Sprintf("severity=$%d", len(args)))
	}
	if filter.Resolved != nil {
		args = append(args, *filter.Resolved)
		clauses = append(clauses, fmt.Sprintf("resolved=$%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("detected_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("detected_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM sla_violations WHERE %s ORDER BY detected_at DESC LIMIT %d OFFSET %d`,
		violationColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SlaViolation
	for rows.Next() {
		var v domain.SlaViolation
		if err := rows.Scan(
			&v.ID,
			&v.TicketID,
			&v.PolicyID,
			&v.Kind,
			&v.ExpectedAt,
			&v.ActualAt,
			&v.DelayHours,
			&v.Severity,
			&v.Resolved,
			&v.ResolvedBy,
			&v.ResolvedAt,
			&v.ResolutionComment,
			&v.DetectedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

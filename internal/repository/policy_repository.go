package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketops/sla-engine/internal/domain"
)

// ErrDuplicateActivePolicy is returned when a second active policy for the
// same (application, priority) pair would be created.
var ErrDuplicateActivePolicy = errors.New("active policy already exists for application/priority")

// PolicyFilter captures listing parameters.
type PolicyFilter struct {
	ApplicationID *string
	Priority      *domain.TicketPriority
	ActiveOnly    bool
	Limit         int
	Offset        int
}

// PolicyRepository encapsulates SLA policy persistence.
type PolicyRepository interface {
	Create(ctx context.Context, policy *domain.SlaPolicy) error
	Update(ctx context.Context, policy *domain.SlaPolicy) error
	GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error)
	ResolveActive(ctx context.Context, applicationID string, priority domain.TicketPriority) (*domain.SlaPolicy, error)
	List(ctx context.Context, filter PolicyFilter) ([]domain.SlaPolicy, error)
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository instantiates repository.
func NewPolicyRepository(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepository{pool: pool}
}

const policyColumns = `id, application_id, priority, response_target_hours,
               resolution_target_hours, escalation_target_hours, active,
               created_by, created_at, updated_at`

func (r *policyRepository) Create(ctx context.Context, policy *domain.SlaPolicy) error {
	const query = `
        INSERT INTO sla_policies (application_id, priority, response_target_hours,
            resolution_target_hours, escalation_target_hours, active, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		policy.ApplicationID,
		policy.Priority,
		policy.ResponseTargetHours,
		policy.ResolutionTargetHours,
		policy.EscalationTargetHours,
		policy.Active,
		policy.CreatedBy,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateActivePolicy
	}
	return err
}

func (r *policyRepository) Update(ctx context.Context, policy *domain.SlaPolicy) error {
	const query = `
        UPDATE sla_policies SET response_target_hours=$1, resolution_target_hours=$2,
            escalation_target_hours=$3, active=$4, updated_at=NOW()
        WHERE id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		policy.ResponseTargetHours,
		policy.ResolutionTargetHours,
		policy.EscalationTargetHours,
		policy.Active,
		policy.ID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateActivePolicy
	}
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *policyRepository) GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	const query = `SELECT ` + policyColumns + ` FROM sla_policies WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *policyRepository) ResolveActive(ctx context.Context, applicationID string, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	const query = `
        SELECT ` + policyColumns + `
        FROM sla_policies WHERE application_id=$1 AND priority=$2 AND active`
	return r.fetchSingle(ctx, query, applicationID, priority)
}

func (r *policyRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.SlaPolicy, error) {
	var policy domain.SlaPolicy
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&policy.ID,
		&policy.ApplicationID,
		&policy.Priority,
		&policy.ResponseTargetHours,
		&policy.ResolutionTargetHours,
		&policy.EscalationTargetHours,
		&policy.Active,
		&policy.CreatedBy,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *policyRepository) List(ctx context.Context, filter PolicyFilter) ([]domain.SlaPolicy, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ApplicationID != nil {
		args = append(args, *filter.ApplicationID)
		clauses = append(clauses, fmt.Sprintf("application_id=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "active")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM sla_policies WHERE %s ORDER BY application_id, priority LIMIT %d OFFSET %d`,
		policyColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SlaPolicy
	for rows.Next() {
		var policy domain.SlaPolicy
		if err := rows.Scan(
			&policy.ID,
			&policy.ApplicationID,
			&policy.Priority,
			&policy.ResponseTargetHours,
			&policy.ResolutionTargetHours,
			&policy.EscalationTargetHours,
			&policy.Active,
			&policy.CreatedBy,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}

// isUniqueViolation reports whether err is a postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketops/sla-engine/internal/domain"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

// EscalationRepository persists the append-only escalation audit trail.
// The (ticket_id, level) unique constraint is the storage-level backstop for
// monotonic level assignment; a lost race surfaces as ESCALATION_CONFLICT.
type EscalationRepository interface {
	Insert(ctx context.Context, e *domain.Escalation) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Escalation, error)
	Latest(ctx context.Context, ticketID string) (*domain.Escalation, error)
	CurrentLevel(ctx context.Context, ticketID string) (int, error)
}

type escalationRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRepository instantiates repository.
func NewEscalationRepository(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepository{pool: pool}
}

const escalationColumns = `id, ticket_id, from_assignee, to_assignee, reason,
               level, automatic, escalated_by, comment, created_at`

func (r *escalationRepository) Insert(ctx context.Context, e *domain.Escalation) error {
	const query = `
        INSERT INTO escalations (id, ticket_id, from_assignee, to_assignee, reason,
            level, automatic, escalated_by, comment)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		e.ID,
		e.TicketID,
		e.FromAssignee,
		e.ToAssignee,
		e.Reason,
		e.Level,
		e.Automatic,
		e.EscalatedBy,
		e.Comment,
	).Scan(&e.CreatedAt)
	if isUniqueViolation(err) {
		return apperrors.NewEscalationConflict(e.TicketID, e.Level)
	}
	return err
}

func (r *escalationRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Escalation, error) {
	const query = `
        SELECT ` + escalationColumns + `
        FROM escalations WHERE ticket_id=$1 ORDER BY level ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Escalation
	for rows.Next() {
		var e domain.Escalation
		if err := scanEscalation(rows.Scan, &e); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *escalationRepository) Latest(ctx context.Context, ticketID string) (*domain.Escalation, error) {
	const query = `
        SELECT ` + escalationColumns + `
        FROM escalations WHERE ticket_id=$1 ORDER BY level DESC LIMIT 1`
	var e domain.Escalation
	if err := scanEscalation(r.pool.QueryRow(ctx, query, ticketID).Scan, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *escalationRepository) CurrentLevel(ctx context.Context, ticketID string) (int, error) {
	const query = `SELECT COALESCE(MAX(level), 0) FROM escalations WHERE ticket_id=$1`
	var level int
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(&level); err != nil {
		return 0, err
	}
	return level, nil
}

func scanEscalation(scan func(...any) error, e *domain.Escalation) error {
	return scan(
		&e.ID,
		&e.TicketID,
		&e.FromAssignee,
		&e.ToAssignee,
		&e.Reason,
		&e.Level,
		&e.Automatic,
		&e.EscalatedBy,
		&e.Comment,
		&e.CreatedAt,
	)
}

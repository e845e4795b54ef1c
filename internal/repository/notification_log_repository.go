package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketops/sla-engine/internal/domain"
)

// NotificationLogFilter captures listing parameters.
type NotificationLogFilter struct {
	TicketID *string
	RuleID   *string
	Channel  *domain.NotificationChannel
	Status   *domain.NotificationStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// NotificationLogRepository persists delivery logs. A log row doubles as the
// durable timer for delayed actions: ClaimDue atomically hands due pending
// rows to exactly one worker, and FailStaleClaims cleans up after a claimer
// that died before finishing delivery.
type NotificationLogRepository interface {
	Insert(ctx context.Context, log *domain.NotificationLog) error
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.NotificationLog, error)
	FailStaleClaims(ctx context.Context, cutoff time.Time) (int64, error)
	GetByID(ctx context.Context, id string) (*domain.NotificationLog, error)
	List(ctx context.Context, filter NotificationLogFilter) ([]domain.NotificationLog, error)
}

type notificationLogRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationLogRepository instantiates repository.
func NewNotificationLogRepository(pool *pgxpool.Pool) NotificationLogRepository {
	return &notificationLogRepository{pool: pool}
}

const logColumns = `id, rule_id, ticket_id, channel, recipient, subject, content,
               status, error_message, scheduled_at, sent_at, delivered_at,
               triggered_by, metadata, created_at`

func (r *notificationLogRepository) Insert(ctx context.Context, log *domain.NotificationLog) error {
	metadata, err := json.Marshal(log.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if log.Metadata == nil {
		metadata = []byte("{}")
	}
	const query = `
        INSERT INTO notification_logs (id, rule_id, ticket_id, channel, recipient,
            subject, content, status, scheduled_at, triggered_by, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		log.ID,
		log.RuleID,
		log.TicketID,
		log.Channel,
		log.Recipient,
		log.Subject,
		log.Content,
		log.Status,
		log.ScheduledAt,
		log.TriggeredBy,
		metadata,
	).Scan(&log.CreatedAt)
}

func (r *notificationLogRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	const query = `
        UPDATE notification_logs SET status=$1, sent_at=$2
        WHERE id=$3 AND status=$4`
	return r.transition(ctx, query, domain.NotificationSent, at, id, domain.NotificationPending)
}

func (r *notificationLogRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	const query = `
        UPDATE notification_logs SET status=$1, delivered_at=$2
        WHERE id=$3 AND status=$4`
	return r.transition(ctx, query, domain.NotificationDelivered, at, id, domain.NotificationSent)
}

func (r *notificationLogRepository) transition(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationLogRepository) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	const query = `
        UPDATE notification_logs SET status=$1, error_message=$2
        WHERE id=$3 AND status=$4`
	return r.transition(ctx, query, domain.NotificationFailed, errorMessage, id, domain.NotificationPending)
}

func (r *notificationLogRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.NotificationLog, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        UPDATE notification_logs SET claimed_at=$1
        WHERE id IN (
            SELECT id FROM notification_logs
            WHERE status='pending' AND claimed_at IS NULL
              AND scheduled_at IS NOT NULL AND scheduled_at <= $1
            ORDER BY scheduled_at ASC
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + logColumns
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

// FailStaleClaims moves claimed-but-still-pending rows whose claim predates
// the cutoff to failed. Delivery may or may not have happened before the
// claimer died; the row is not redelivered, only taken out of pending.
func (r *notificationLogRepository) FailStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
        UPDATE notification_logs SET status=$1, error_message=$2
        WHERE status=$3 AND claimed_at IS NOT NULL AND claimed_at < $4`
	cmd, err := r.pool.Exec(ctx, query,
		domain.NotificationFailed,
		"delivery interrupted after claim",
		domain.NotificationPending,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationLogRepository) GetByID(ctx context.Context, id string) (*domain.NotificationLog, error) {
	const query = `SELECT ` + logColumns + ` FROM notification_logs WHERE id=$1`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	logs, err := scanLogs(rows)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &logs[0], nil
}

func (r *notificationLogRepository) List(ctx context.Context, filter NotificationLogFilter) ([]domain.NotificationLog, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.TicketID != nil {
		args = append(args, *filter.TicketID)
		clauses = append(clauses, fmt.Sprintf("ticket_id=$%d", len(args)))
	}
	if filter.RuleID != nil {
		args = append(args, *filter.RuleID)
		clauses = append(clauses, fmt.Sprintf("rule_id=$%d", len(args)))
	}
	if filter.Channel != nil {
		args = append(args, *filter.Channel)
		clauses = append(clauses, fmt.Sprintf("channel=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM notification_logs WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		logColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

func scanLogs(rows pgx.Rows) ([]domain.NotificationLog, error) {
	var result []domain.NotificationLog
	for rows.Next() {
		var log domain.NotificationLog
		var metadata []byte
		if err := rows.Scan(
			&log.ID,
			&log.RuleID,
			&log.TicketID,
			&log.Channel,
			&log.Recipient,
			&log.Subject,
			&log.Content,
			&log.Status,
			&log.ErrorMessage,
			&log.ScheduledAt,
			&log.SentAt,
			&log.DeliveredAt,
			&log.TriggeredBy,
			&metadata,
			&log.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &log.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for log %s: %w", log.ID, err)
			}
		}
		result = append(result, log)
	}
	return result, rows.Err()
}

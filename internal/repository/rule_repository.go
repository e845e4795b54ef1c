package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketops/sla-engine/internal/domain"
)

// RuleRepository encapsulates notification rule persistence. Conditions and
// actions are stored as JSONB but always round-trip through the typed domain
// structs, so malformed rules cannot reach the evaluator.
type RuleRepository interface {
	Create(ctx context.Context, rule *domain.NotificationRule) error
	Update(ctx context.Context, rule *domain.NotificationRule) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.NotificationRule, error)
	List(ctx context.Context, limit, offset int) ([]domain.NotificationRule, error)
	ListActiveByTrigger(ctx context.Context, trigger domain.RuleTrigger) ([]domain.NotificationRule, error)
}

type ruleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository instantiates repository.
func NewRuleRepository(pool *pgxpool.Pool) RuleRepository {
	return &ruleRepository{pool: pool}
}

const ruleColumns = `id, name, trigger, conditions, actions, active, created_by, created_at, updated_at`

func (r *ruleRepository) Create(ctx context.Context, rule *domain.NotificationRule) error {
	conditions, actions, err := marshalRuleBody(rule)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO notification_rules (id, name, trigger, conditions, actions, active, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.ID,
		rule.Name,
		rule.Trigger,
		conditions,
		actions,
		rule.Active,
		rule.CreatedBy,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
}

func (r *ruleRepository) Update(ctx context.Context, rule *domain.NotificationRule) error {
	conditions, actions, err := marshalRuleBody(rule)
	if err != nil {
		return err
	}
	const query = `
        UPDATE notification_rules SET name=$1, trigger=$2, conditions=$3, actions=$4,
            active=$5, updated_at=NOW()
        WHERE id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		rule.Name,
		rule.Trigger,
		conditions,
		actions,
		rule.Active,
		rule.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ruleRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM notification_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ruleRepository) GetByID(ctx context.Context, id string) (*domain.NotificationRule, error) {
	const query = `SELECT ` + ruleColumns + ` FROM notification_rules WHERE id=$1`
	var rule domain.NotificationRule
	var conditions, actions []byte
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&rule.ID,
		&rule.Name,
		&rule.Trigger,
		&conditions,
		&actions,
		&rule.Active,
		&rule.CreatedBy,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalRuleBody(&rule, conditions, actions); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) List(ctx context.Context, limit, offset int) ([]domain.NotificationRule, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT ` + ruleColumns + `
        FROM notification_rules ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *ruleRepository) ListActiveByTrigger(ctx context.Context, trigger domain.RuleTrigger) ([]domain.NotificationRule, error) {
	const query = `
        SELECT ` + ruleColumns + `
        FROM notification_rules WHERE trigger=$1 AND active ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, trigger)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func scanRules(rows pgx.Rows) ([]domain.NotificationRule, error) {
	var result []domain.NotificationRule
	for rows.Next() {
		var rule domain.NotificationRule
		var conditions, actions []byte
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Trigger,
			&conditions,
			&actions,
			&rule.Active,
			&rule.CreatedBy,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := unmarshalRuleBody(&rule, conditions, actions); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func marshalRuleBody(rule *domain.NotificationRule) ([]byte, []byte, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal conditions: %w", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal actions: %w", err)
	}
	return conditions, actions, nil
}

func unmarshalRuleBody(rule *domain.NotificationRule, conditions, actions []byte) error {
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return fmt.Errorf("unmarshal conditions for rule %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return fmt.Errorf("unmarshal actions for rule %s: %w", rule.ID, err)
	}
	return nil
}

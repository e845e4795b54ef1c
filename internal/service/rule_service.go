package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ticketops/sla-engine/internal/domain"
	"github.com/ticketops/sla-engine/internal/events"
	"github.com/ticketops/sla-engine/internal/notify"
	"github.com/ticketops/sla-engine/internal/repository"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

// RuleService owns notification rule administration and evaluation.
type RuleService struct {
	rules  repository.RuleRepository
	logger *zap.Logger
}

// NewRuleService constructs the service.
func NewRuleService(rules repository.RuleRepository, logger *zap.Logger) *RuleService {
	return &RuleService{rules: rules, logger: logger}
}

// RuleInput describes rule creation/update payload.
type RuleInput struct {
	Name       string
	Trigger    domain.RuleTrigger
	Conditions []domain.RuleCondition
	Actions    []domain.RuleAction
	Active     bool
}

// Create validates and stores a rule. Malformed conditions and actions are
// rejected here, at creation time, so evaluation only ever loads well-formed
// rules.
func (s *RuleService) Create(ctx context.Context, actorID string, input RuleInput) (*domain.NotificationRule, error) {
	rule := &domain.NotificationRule{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(input.Name),
		Trigger:    input.Trigger,
		Conditions: input.Conditions,
		Actions:    input.Actions,
		Active:     input.Active,
		CreatedBy:  actorID,
	}
	if err := rule.Validate(); err != nil {
		return nil, apperrors.NewDomainError("RULE_INVALID", err.Error(), 400, nil)
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, apperrors.MapError(err)
	}
	return rule, nil
}

// Update replaces a rule's definition.
func (s *RuleService) Update(ctx context.Context, id string, input RuleInput) (*domain.NotificationRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("notification rule", map[string]any{"rule_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	rule.Name = strings.TrimSpace(input.Name)
	rule.Trigger = input.Trigger
	rule.Conditions = input.Conditions
	rule.Actions = input.Actions
	rule.Active = input.Active
	if err := rule.Validate(); err != nil {
		return nil, apperrors.NewDomainError("RULE_INVALID", err.Error(), 400, nil)
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, apperrors.MapError(err)
	}
	return rule, nil
}

// Delete removes a rule. Already-dispatched logs keep their rule id.
func (s *RuleService) Delete(ctx context.Context, id string) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("notification rule", map[string]any{"rule_id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// Get fetches a rule by id.
func (s *RuleService) Get(ctx context.Context, id string) (*domain.NotificationRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("notification rule", map[string]any{"rule_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return rule, nil
}

// List returns rules.
func (s *RuleService) List(ctx context.Context, limit, offset int) ([]domain.NotificationRule, error) {
	rules, err := s.rules.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rules, nil
}

// Evaluate matches all active rules for the event's trigger and returns one
// dispatch instruction per action of every firing rule. A rule fires only
// when all of its conditions match; an empty condition list always fires.
// A single broken rule is logged and skipped, never aborting the rest.
func (s *RuleService) Evaluate(ctx context.Context, event events.Event) ([]notify.Instruction, error) {
	rules, err := s.rules.ListActiveByTrigger(ctx, event.Trigger())
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	var instructions []notify.Instruction
	for i := range rules {
		rule := &rules[i]
		fired, err := ruleMatches(rule, event)
		if err != nil {
			s.logger.Warn("rule evaluation error; treating as non-matching",
				zap.String("rule_id", rule.ID),
				zap.String("event_id", event.ID),
				zap.Error(err))
			continue
		}
		if !fired {
			continue
		}
		for _, action := range rule.Actions {
			instructions = append(instructions, instructionFor(rule, action, event))
		}
	}
	return instructions, nil
}

func instructionFor(rule *domain.NotificationRule, action domain.RuleAction, event events.Event) notify.Instruction {
	ruleID := rule.ID
	ticketID := event.TicketID
	return notify.Instruction{
		RuleID:      &ruleID,
		TicketID:    &ticketID,
		Channel:     action.Channel,
		Recipients:  action.Recipients,
		Subject:     interpolate(action.Subject, event),
		Body:        interpolate(action.Body, event),
		Delay:       time.Duration(action.DelayMinutes) * time.Minute,
		TriggeredBy: event.ActorID,
		Metadata: map[string]any{
			"event_id":   event.ID,
			"event_type": string(event.Type),
		},
	}
}

// ruleMatches ANDs all conditions. Errors bubble up so the caller can treat
// the whole rule as non-matching.
func ruleMatches(rule *domain.NotificationRule, event events.Event) (bool, error) {
	for _, cond := range rule.Conditions {
		ok, err := conditionMatches(cond, event)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func conditionMatches(cond domain.RuleCondition, event events.Event) (bool, error) {
	value, present := eventField(event, cond.Field)
	if !present {
		return false, nil
	}

	switch cond.Operator {
	case domain.OpEquals:
		return value == cond.Value, nil
	case domain.OpContains:
		return strings.Contains(value, cond.Value), nil
	case domain.OpGreaterThan, domain.OpLessThan:
		left, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false, fmt.Errorf("field %q is not numeric: %w", cond.Field, err)
		}
		right, err := strconv.ParseFloat(cond.Value, 64)
		if err != nil {
			return false, fmt.Errorf("condition value %q is not numeric: %w", cond.Value, err)
		}
		if cond.Operator == domain.OpGreaterThan {
			return left > right, nil
		}
		return left < right, nil
	case domain.OpIn, domain.OpNotIn:
		found := false
		for _, candidate := range cond.Values {
			if value == candidate {
				found = true
				break
			}
		}
		if cond.Operator == domain.OpIn {
			return found, nil
		}
		return !found, nil
	default:
		return false, fmt.Errorf("unknown operator %q", cond.Operator)
	}
}

// eventField resolves a condition field against the event payload plus the
// envelope fields every event carries.
func eventField(event events.Event, field string) (string, bool) {
	switch field {
	case "ticket_id":
		return event.TicketID, true
	case "event_type":
		return string(event.Type), true
	}
	value, ok := event.Fields[field]
	if !ok {
		return "", false
	}
	return stringifyField(value), true
}

// stringifyField canonicalizes payload values for comparison and templating.
func stringifyField(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// interpolate substitutes {{field}} placeholders from the event payload.
// Unknown placeholders are left untouched; this is plain string
// substitution, not a templating language.
func interpolate(template string, event events.Event) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	result := template
	for field, value := range event.Fields {
		result = strings.ReplaceAll(result, "{{"+field+"}}", stringifyField(value))
	}
	result = strings.ReplaceAll(result, "{{ticket_id}}", event.TicketID)
	result = strings.ReplaceAll(result, "{{event_type}}", string(event.Type))
	return result
}

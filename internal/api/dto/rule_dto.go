package dto

import (
	"time"

	"github.com/ticketops/sla-engine/internal/domain"
)

// RuleRequest payload for create and update.
type RuleRequest struct {
	Name       string                 `json:"name"`
	Trigger    domain.RuleTrigger     `json:"trigger"`
	Conditions []domain.RuleCondition `json:"conditions"`
	Actions    []domain.RuleAction    `json:"actions"`
	Active     bool                   `json:"active"`
}

// RuleResponse response.
type RuleResponse struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Trigger    domain.RuleTrigger     `json:"trigger"`
	Conditions []domain.RuleCondition `json:"conditions"`
	Actions    []domain.RuleAction    `json:"actions"`
	Active     bool                   `json:"active"`
	CreatedBy  string                 `json:"created_by"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// NewRuleResponse maps domain to response.
func NewRuleResponse(r *domain.NotificationRule) RuleResponse {
	return RuleResponse{
		ID:         r.ID,
		Name:       r.Name,
		Trigger:    r.Trigger,
		Conditions: r.Conditions,
		Actions:    r.Actions,
		Active:     r.Active,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// NewRuleListResponse maps a slice of rules.
func NewRuleListResponse(rules []domain.NotificationRule) []RuleResponse {
	result := make([]RuleResponse, 0, len(rules))
	for i := range rules {
		result = append(result, NewRuleResponse(&rules[i]))
	}
	return result
}

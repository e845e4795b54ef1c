package dto

import (
	"time"

	"github.com/ticketops/sla-engine/internal/domain"
)

// CreatePolicyRequest payload.
type CreatePolicyRequest struct {
	ApplicationID         string                `json:"application_id"`
	Priority              domain.TicketPriority `json:"priority"`
	ResponseTargetHours   float64               `json:"response_target_hours"`
	ResolutionTargetHours float64               `json:"resolution_target_hours"`
	EscalationTargetHours float64               `json:"escalation_target_hours"`
}

// UpdatePolicyRequest payload. Nil fields stay unchanged.
type UpdatePolicyRequest struct {
	ResponseTargetHours   *float64 `json:"response_target_hours"`
	ResolutionTargetHours *float64 `json:"resolution_target_hours"`
	EscalationTargetHours *float64 `json:"escalation_target_hours"`
	Active                *bool    `json:"active"`
}

// PolicyResponse response.
type PolicyResponse struct {
	ID                    string                `json:"id"`
	ApplicationID         string                `json:"application_id"`
	Priority              domain.TicketPriority `json:"priority"`
	ResponseTargetHours   float64               `json:"response_target_hours"`
	ResolutionTargetHours float64               `json:"resolution_target_hours"`
	EscalationTargetHours float64               `json:"escalation_target_hours"`
	Active                bool                  `json:"active"`
	CreatedBy             string                `json:"created_by"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// NewPolicyResponse maps domain to response.
func NewPolicyResponse(p *domain.SlaPolicy) PolicyResponse {
	return PolicyResponse{
		ID:                    p.ID,
		ApplicationID:         p.ApplicationID,
		Priority:              p.Priority,
		ResponseTargetHours:   p.ResponseTargetHours,
		ResolutionTargetHours: p.ResolutionTargetHours,
		EscalationTargetHours: p.EscalationTargetHours,
		Active:                p.Active,
		CreatedBy:             p.CreatedBy,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

// NewPolicyListResponse maps a slice of policies.
func NewPolicyListResponse(policies []domain.SlaPolicy) []PolicyResponse {
	result := make([]PolicyResponse, 0, len(policies))
	for i := range policies {
		result = append(result, NewPolicyResponse(&policies[i]))
	}
	return result
}

package dto

import (
	"time"

	"github.com/ticketops/sla-engine/internal/domain"
)

// EscalateRequest payload for manual escalation.
type EscalateRequest struct {
	ToAssignee string                  `json:"to_assignee"`
	Reason     domain.EscalationReason `json:"reason"`
	Comment    *string                 `json:"comment"`
}

// EscalationResponse response.
type EscalationResponse struct {
	ID           string                  `json:"id"`
	TicketID     string                  `json:"ticket_id"`
	FromAssignee *string                 `json:"from_assignee"`
	ToAssignee   string                  `json:"to_assignee"`
	Reason       domain.EscalationReason `json:"reason"`
	Level        int                     `json:"level"`
	Automatic    bool                    `json:"automatic"`
	EscalatedBy  *string                 `json:"escalated_by"`
	Comment      *string                 `json:"comment"`
	CreatedAt    time.Time               `json:"created_at"`
}

// NewEscalationResponse maps domain to response.
func NewEscalationResponse(e *domain.Escalation) EscalationResponse {
	return EscalationResponse{
		ID:           e.ID,
		TicketID:     e.TicketID,
		FromAssignee: e.FromAssignee,
		ToAssignee:   e.ToAssignee,
		Reason:       e.Reason,
		Level:        e.Level,
		Automatic:    e.Automatic,
		EscalatedBy:  e.EscalatedBy,
		Comment:      e.Comment,
		CreatedAt:    e.CreatedAt,
	}
}

// NewEscalationListResponse maps a slice of escalations.
func NewEscalationListResponse(escalations []domain.Escalation) []EscalationResponse {
	result := make([]EscalationResponse, 0, len(escalations))
	for i := range escalations {
		result = append(result, NewEscalationResponse(&escalations[i]))
	}
	return result
}

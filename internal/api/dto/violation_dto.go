package dto

import (
	"time"

	"github.com/ticketops/sla-engine/internal/domain"
)

// ResolveViolationRequest payload.
type ResolveViolationRequest struct {
	Comment *string `json:"comment"`
}

// ViolationResponse response.
type ViolationResponse struct {
	ID                string                   `json:"id"`
	TicketID          string                   `json:"ticket_id"`
	PolicyID          string                   `json:"policy_id"`
	Kind              domain.ViolationKind     `json:"kind"`
	ExpectedAt        time.Time                `json:"expected_at"`
	ActualAt          *time.Time               `json:"actual_at"`
	DelayHours        float64                  `json:"delay_hours"`
	Severity          domain.ViolationSeverity `json:"severity"`
	Resolved          bool                     `json:"resolved"`
	ResolvedBy        *string                  `json:"resolved_by"`
	ResolvedAt        *time.Time               `json:"resolved_at"`
	ResolutionComment *string                  `json:"resolution_comment"`
	DetectedAt        time.Time                `json:"detected_at"`
}

// NewViolationResponse maps domain to response.
func NewViolationResponse(v *domain.SlaViolation) ViolationResponse {
	return ViolationResponse{
		ID:                v.ID,
		TicketID:          v.TicketID,
		PolicyID:          v.PolicyID,
		Kind:              v.Kind,
		ExpectedAt:        v.ExpectedAt,
		ActualAt:          v.ActualAt,
		DelayHours:        v.DelayHours,
		Severity:          v.Severity,
		Resolved:          v.Resolved,
		ResolvedBy:        v.ResolvedBy,
		ResolvedAt:        v.ResolvedAt,
		ResolutionComment: v.ResolutionComment,
		DetectedAt:        v.DetectedAt,
	}
}

// NewViolationListResponse maps a slice of violations.
func NewViolationListResponse(violations []domain.SlaViolation) []ViolationResponse {
	result := make([]ViolationResponse, 0, len(violations))
	for i := range violations {
		result = append(result, NewViolationResponse(&violations[i]))
	}
	return result
}

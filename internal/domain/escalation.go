package domain

import "time"

// EscalationReason captures why a ticket was escalated.
type EscalationReason string

const (
	EscalationReasonSlaViolation   EscalationReason = "sla_violation"
	EscalationReasonComplexity     EscalationReason = "complexity"
	EscalationReasonManual         EscalationReason = "manual"
	EscalationReasonPriorityChange EscalationReason = "priority_change"
)

// KnownEscalationReason reports whether r is a defined reason.
func KnownEscalationReason(r EscalationReason) bool {
	switch r {
	case EscalationReasonSlaViolation, EscalationReasonComplexity,
		EscalationReasonManual, EscalationReasonPriorityChange:
		return true
	}
	return false
}

// Escalation is an append-only audit record of a ticket ownership hand-off.
// Levels per ticket are strictly 1, 2, 3, ... with no gaps; the ticket's
// current assignee is derived from the latest record.
type Escalation struct {
	ID           string
	TicketID     string
	FromAssignee *string
	ToAssignee   string
	Reason       EscalationReason
	Level        int
	Automatic    bool
	EscalatedBy  *string
	Comment      *string
	CreatedAt    time.Time
}

package domain

import (
	"fmt"
	"time"
)

// SlaPolicy defines the time commitments for one (application, priority) pair.
// At most one active policy may exist per pair; deactivated policies are kept
// so historical violations keep their attribution.
type SlaPolicy struct {
	ID                    string
	ApplicationID         string
	Priority              TicketPriority
	ResponseTargetHours   float64
	ResolutionTargetHours float64
	EscalationTargetHours float64
	Active                bool
	CreatedBy             string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TargetHours returns the target for the given violation kind.
func (p *SlaPolicy) TargetHours(kind ViolationKind) (float64, error) {
	switch kind {
	case ViolationResponseTime:
		return p.ResponseTargetHours, nil
	case ViolationResolutionTime:
		return p.ResolutionTargetHours, nil
	case ViolationEscalationTime:
		return p.EscalationTargetHours, nil
	}
	return 0, fmt.Errorf("unknown violation kind %q", kind)
}

// Target returns the target as a duration.
func (p *SlaPolicy) Target(kind ViolationKind) (time.Duration, error) {
	hours, err := p.TargetHours(kind)
	if err != nil {
		return 0, err
	}
	return time.Duration(hours * float64(time.Hour)), nil
}

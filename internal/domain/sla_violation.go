package domain

import "time"

// ViolationKind identifies which SLA target was breached.
type ViolationKind string

const (
	ViolationResponseTime   ViolationKind = "response_time"
	ViolationResolutionTime ViolationKind = "resolution_time"
	ViolationEscalationTime ViolationKind = "escalation_time"
)

// ViolationSeverity grades a breach by how far past the target it is.
type ViolationSeverity string

const (
	SeverityMinor    ViolationSeverity = "minor"
	SeverityMajor    ViolationSeverity = "major"
	SeverityCritical ViolationSeverity = "critical"
)

// SlaViolation records a detected breach of an SLA target for one ticket.
// Only one unresolved violation per (ticket, kind) may exist at a time.
type SlaViolation struct {
	ID                string
	TicketID          string
	PolicyID          string
	Kind              ViolationKind
	ExpectedAt        time.Time
	ActualAt          *time.Time
	DelayHours        float64
	Severity          ViolationSeverity
	Resolved          bool
	ResolvedBy        *string
	ResolvedAt        *time.Time
	ResolutionComment *string
	DetectedAt        time.Time
}

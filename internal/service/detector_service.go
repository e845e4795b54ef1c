package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ticketops/sla-engine/internal/config"
	"github.com/ticketops/sla-engine/internal/domain"
	"github.com/ticketops/sla-engine/internal/events"
	"github.com/ticketops/sla-engine/internal/observability"
	"github.com/ticketops/sla-engine/internal/repository"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

// SeverityClassifier maps a non-negative delay to exactly one severity,
// graded by how far past the target the delay is. Monotonic and total.
type SeverityClassifier struct {
	minorMaxRatio float64
	majorMaxRatio float64
}

// NewSeverityClassifier builds a classifier from configured thresholds.
func NewSeverityClassifier(cfg config.SLAConfig) SeverityClassifier {
	minor, major := cfg.MinorMaxRatio, cfg.MajorMaxRatio
	if minor <= 0 {
		minor = 0.25
	}
	if major <= minor {
		major = 1.0
	}
	return SeverityClassifier{minorMaxRatio: minor, majorMaxRatio: major}
}

// Classify grades delayHours against targetHours.
func (c SeverityClassifier) Classify(delayHours, targetHours float64) domain.ViolationSeverity {
	if targetHours <= 0 {
		return domain.SeverityCritical
	}
	ratio := delayHours / targetHours
	switch {
	case ratio < c.minorMaxRatio:
		return domain.SeverityMinor
	case ratio <= c.majorMaxRatio:
		return domain.SeverityMajor
	default:
		return domain.SeverityCritical
	}
}

// AutoEscalator is the detector's hook into the escalation coordinator,
// invoked when an escalation_time breach is first detected.
type AutoEscalator interface {
	AutoEscalate(ctx context.Context, ticket *domain.Ticket, violation *domain.SlaViolation) error
}

// SweepResult summarizes one detector pass.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Created   int `json:"created"`
	Refreshed int `json:"refreshed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// DetectorService compares every open ticket against its resolved SLA policy
// and maintains at most one open violation per (ticket, kind).
type DetectorService struct {
	tickets    repository.TicketRepository
	violations repository.ViolationRepository
	resolver   *PolicyService
	escalator  AutoEscalator
	classifier SeverityClassifier
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	batchSize  int
	now        func() time.Time
}

// DetectorDependencies bundles collaborators for the detector.
type DetectorDependencies struct {
	TicketRepo    repository.TicketRepository
	ViolationRepo repository.ViolationRepository
	Resolver      *PolicyService
	Escalator     AutoEscalator
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// NewDetectorService constructs the service.
func NewDetectorService(cfg config.SLAConfig, deps DetectorDependencies) *DetectorService {
	batch := cfg.SweepBatchSize
	if batch <= 0 {
		batch = 500
	}
	return &DetectorService{
		tickets:    deps.TicketRepo,
		violations: deps.ViolationRepo,
		resolver:   deps.Resolver,
		escalator:  deps.Escalator,
		classifier: NewSeverityClassifier(cfg),
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		batchSize:  batch,
		now:        time.Now,
	}
}

// Sweep walks all open tickets once. One ticket's failure never aborts the
// batch: it is logged, counted and the sweep moves on.
func (s *DetectorService) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	offset := 0
	for {
		tickets, err := s.tickets.ListOpen(ctx, s.batchSize, offset)
		if err != nil {
			return result, apperrors.MapError(err)
		}
		for i := range tickets {
			ticket := &tickets[i]
			result.Scanned++
			created, refreshed, err := s.checkTicket(ctx, ticket)
			if err != nil {
				if apperrors.IsPolicyNotFound(err) {
					result.Skipped++
					continue
				}
				result.Errors++
				s.logger.Warn("sweep: ticket check failed",
					zap.String("ticket_id", ticket.ID),
					zap.Error(err))
				continue
			}
			result.Created += created
			result.Refreshed += refreshed
		}
		if len(tickets) < s.batchSize {
			break
		}
		offset += s.batchSize
	}
	s.metrics.RecordSweep()
	s.logger.Info("sweep complete",
		zap.Int("scanned", result.Scanned),
		zap.Int("created", result.Created),
		zap.Int("refreshed", result.Refreshed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors))
	return result, nil
}

// checkTicket evaluates all three SLA kinds for one ticket.
func (s *DetectorService) checkTicket(ctx context.Context, ticket *domain.Ticket) (created, refreshed int, err error) {
	policy, err := s.resolver.Resolve(ctx, ticket.ApplicationID, ticket.Priority)
	if err != nil {
		return 0, 0, err
	}
	now := s.now()

	type check struct {
		kind     domain.ViolationKind
		breached bool
	}
	checks := []check{
		{domain.ViolationResponseTime, ticket.FirstResponseAt == nil},
		{domain.ViolationResolutionTime, ticket.ResolvedAt == nil && !ticket.Closed()},
		{domain.ViolationEscalationTime, !ticket.Closed()},
	}

	for _, c := range checks {
		if !c.breached {
			continue
		}
		target, terr := policy.Target(c.kind)
		if terr != nil {
			return created, refreshed, terr
		}
		expectedAt := ticket.CreatedAt.Add(target)
		if !now.After(expectedAt) {
			continue
		}
		wasCreated, verr := s.ensureViolation(ctx, ticket, policy, c.kind, expectedAt, now)
		if verr != nil {
			return created, refreshed, verr
		}
		if wasCreated {
			created++
		} else {
			refreshed++
		}
	}
	return created, refreshed, nil
}

// ensureViolation creates the open violation for (ticket, kind) or refreshes
// its delay and severity. Detection stays idempotent: the open-violation
// lookup plus the partial unique index guarantee a single open row even under
// concurrent sweeps.
func (s *DetectorService) ensureViolation(ctx context.Context, ticket *domain.Ticket, policy *domain.SlaPolicy, kind domain.ViolationKind, expectedAt, now time.Time) (bool, error) {
	delayHours := now.Sub(expectedAt).Hours()
	targetHours, err := policy.TargetHours(kind)
	if err != nil {
		return false, err
	}
	severity := s.classifier.Classify(delayHours, targetHours)

	existing, err := s.violations.GetOpen(ctx, ticket.ID, kind)
	if err == nil {
		if err := s.violations.RefreshDelay(ctx, existing.ID, delayHours, severity); err != nil {
			return false, err
		}
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	violation := &domain.SlaViolation{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		PolicyID:   policy.ID,
		Kind:       kind,
		ExpectedAt: expectedAt,
		DelayHours: delayHours,
		Severity:   severity,
		DetectedAt: now,
	}
	inserted, err := s.violations.Insert(ctx, violation)
	if err != nil {
		return false, err
	}
	if !inserted {
		// a concurrent sweep won the insert; nothing further to do
		return false, nil
	}

	s.metrics.RecordViolation(string(kind), string(severity))
	s.logger.Info("sla violation detected",
		zap.String("ticket_id", ticket.ID),
		zap.String("kind", string(kind)),
		zap.String("severity", string(severity)),
		zap.Float64("delay_hours", delayHours))

	_ = s.dispatcher.Publish(ctx, events.Event{
		Type:     events.EventSlaViolation,
		TicketID: ticket.ID,
		Fields:   events.SlaViolationFields(violation, ticket),
	})

	// an escalation_time breach escalates once, on first detection
	if kind == domain.ViolationEscalationTime && s.escalator != nil {
		if err := s.escalator.AutoEscalate(ctx, ticket, violation); err != nil {
			s.logger.Warn("automatic escalation failed",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		}
	}
	return true, nil
}

// ResolveViolation closes a violation on behalf of an operator.
func (s *DetectorService) ResolveViolation(ctx context.Context, id, actorID string, comment *string) (*domain.SlaViolation, error) {
	if err := s.violations.MarkResolved(ctx, id, &actorID, comment, s.now()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("open sla violation", map[string]any{"violation_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	violation, err := s.violations.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return violation, nil
}

// ListViolations returns violations matching the filter.
func (s *DetectorService) ListViolations(ctx context.Context, filter repository.ViolationFilter) ([]domain.SlaViolation, error) {
	violations, err := s.violations.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return violations, nil
}

// RegisterHandlers wires the implicit closure path: once the awaited ticket
// event arrives, the corresponding open violation resolves itself.
func (s *DetectorService) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventResponseAdded, func(ctx context.Context, event events.Event) error {
		return s.violations.CloseSatisfied(ctx, event.TicketID, domain.ViolationResponseTime, event.Timestamp)
	})
	dispatcher.Subscribe(events.EventStatusChanged, func(ctx context.Context, event events.Event) error {
		status, _ := event.Fields["new_status"].(string)
		switch domain.TicketStatus(status) {
		case domain.TicketStatusResolved, domain.TicketStatusClosed:
			return s.violations.CloseSatisfied(ctx, event.TicketID, domain.ViolationResolutionTime, event.Timestamp)
		}
		return nil
	})
}

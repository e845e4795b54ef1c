package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ticketops/sla-engine/internal/domain"
	"github.com/ticketops/sla-engine/internal/events"
	"github.com/ticketops/sla-engine/internal/observability"
	"github.com/ticketops/sla-engine/internal/persistence"
	"github.com/ticketops/sla-engine/internal/repository"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

// escalationConflictRetries bounds how often a lost level race is retried
// with a fresh level read before giving up.
const escalationConflictRetries = 3

const (
	escalationLockTTL = 10 * time.Second

	// A held lock means another escalation for the same ticket is in
	// flight; the acquire loop waits it out rather than failing the
	// caller, up to escalationLockWait.
	escalationLockWait       = 3 * time.Second
	escalationLockRetryDelay = 25 * time.Millisecond
)

// Locker serializes escalation attempts per ticket across processes.
// persistence.Redis implements it; tests substitute an in-process lock.
type Locker interface {
	Lock(ctx context.Context, ticketID string, ttl time.Duration) (func(), error)
}

// AssigneeResolver picks who receives an automatically escalated ticket.
// The actual strategy (next tier's on-call, round robin, ...) is external
// policy injected here as a capability.
type AssigneeResolver interface {
	NextAssignee(ctx context.Context, ticket *domain.Ticket, level int) (string, error)
}

// EscalationService owns the per-ticket escalation state machine: level 0
// (unescalated) climbs one level per accepted request, and the audit trail
// is append-only.
type EscalationService struct {
	tickets     repository.TicketRepository
	escalations repository.EscalationRepository
	locker      Locker
	assignees   AssigneeResolver
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics

	lockWait       time.Duration
	lockRetryDelay time.Duration
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	TicketRepo     repository.TicketRepository
	EscalationRepo repository.EscalationRepository
	Locker         Locker
	Assignees      AssigneeResolver
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	return &EscalationService{
		tickets:        deps.TicketRepo,
		escalations:    deps.EscalationRepo,
		locker:         deps.Locker,
		assignees:      deps.Assignees,
		dispatcher:     deps.Dispatcher,
		logger:         deps.Logger,
		metrics:        deps.Metrics,
		lockWait:       escalationLockWait,
		lockRetryDelay: escalationLockRetryDelay,
	}
}

// EscalateInput describes an escalation request. ActorID is nil when the
// system escalates automatically.
type EscalateInput struct {
	TicketID   string
	ToAssignee string
	Reason     domain.EscalationReason
	ActorID    *string
	Comment    *string
	Automatic  bool
}

// Escalate appends the next escalation record for the ticket and hands the
// ticket to the new assignee. Level numbers are never skipped or reused:
// the per-ticket lock serializes the common path and the storage unique
// constraint catches whatever still races through.
func (s *EscalationService) Escalate(ctx context.Context, input EscalateInput) (*domain.Escalation, error) {
	if input.ToAssignee == "" {
		return nil, apperrors.NewValidationError("to_assignee is required", nil)
	}
	if !domain.KnownEscalationReason(input.Reason) {
		return nil, apperrors.NewValidationError("unknown escalation reason", map[string]any{"reason": input.Reason})
	}

	ticket, err := s.tickets.GetByID(ctx, input.TicketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": input.TicketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Closed() {
		return nil, apperrors.NewConflict("ticket is not escalatable", map[string]any{
			"ticket_id": ticket.ID,
			"status":    ticket.Status,
		})
	}

	unlock, err := s.acquireTicketLock(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, persistence.ErrLockHeld) {
			return nil, apperrors.NewEscalationConflict(ticket.ID, 0)
		}
		return nil, apperrors.MapError(err)
	}
	defer unlock()

	var escalation *domain.Escalation
	for attempt := 0; attempt < escalationConflictRetries; attempt++ {
		level, err := s.escalations.CurrentLevel(ctx, ticket.ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}

		escalation = &domain.Escalation{
			ID:           uuid.NewString(),
			TicketID:     ticket.ID,
			FromAssignee: ticket.AssigneeID,
			ToAssignee:   input.ToAssignee,
			Reason:       input.Reason,
			Level:        level + 1,
			Automatic:    input.Automatic,
			EscalatedBy:  input.ActorID,
			Comment:      input.Comment,
		}
		err = s.escalations.Insert(ctx, escalation)
		if err == nil {
			break
		}
		if apperrors.IsEscalationConflict(err) {
			escalation = nil
			continue
		}
		return nil, apperrors.MapError(err)
	}
	if escalation == nil {
		return nil, apperrors.NewEscalationConflict(ticket.ID, 0)
	}

	if err := s.tickets.UpdateAssignee(ctx, ticket.ID, escalation.ToAssignee); err != nil {
		// the audit record stands; assignment drift is logged, not rolled back
		s.logger.Error("assignee update failed after escalation",
			zap.String("ticket_id", ticket.ID),
			zap.Int("level", escalation.Level),
			zap.Error(err))
	}

	s.metrics.RecordEscalation(string(escalation.Reason), escalation.Automatic)
	s.logger.Info("ticket escalated",
		zap.String("ticket_id", ticket.ID),
		zap.Int("level", escalation.Level),
		zap.String("reason", string(escalation.Reason)),
		zap.Bool("automatic", escalation.Automatic))

	_ = s.dispatcher.Publish(ctx, events.Event{
		Type:     events.EventEscalation,
		TicketID: ticket.ID,
		ActorID:  input.ActorID,
		Fields:   events.EscalationFields(escalation),
	})
	return escalation, nil
}

// acquireTicketLock takes the per-ticket lock, retrying a fail-fast
// ErrLockHeld until the concurrent holder releases it or lockWait runs
// out. A caller that loses the race therefore serializes behind the
// winner and still gets the next level instead of an error.
func (s *EscalationService) acquireTicketLock(ctx context.Context, ticketID string) (func(), error) {
	deadline := time.Now().Add(s.lockWait)
	for {
		unlock, err := s.locker.Lock(ctx, ticketID, escalationLockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, persistence.ErrLockHeld) || time.Now().After(deadline) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.lockRetryDelay):
		}
	}
}

// AutoEscalate is the detector's entry point for escalation_time breaches.
// The assignment strategy supplies the target; the violation id is kept in
// the comment for the audit trail.
func (s *EscalationService) AutoEscalate(ctx context.Context, ticket *domain.Ticket, violation *domain.SlaViolation) error {
	level, err := s.escalations.CurrentLevel(ctx, ticket.ID)
	if err != nil {
		return apperrors.MapError(err)
	}
	assignee, err := s.assignees.NextAssignee(ctx, ticket, level+1)
	if err != nil {
		return apperrors.MapError(err)
	}
	comment := "sla escalation target breached (violation " + violation.ID + ")"
	_, err = s.Escalate(ctx, EscalateInput{
		TicketID:   ticket.ID,
		ToAssignee: assignee,
		Reason:     domain.EscalationReasonSlaViolation,
		Comment:    &comment,
		Automatic:  true,
	})
	return err
}

// History returns the full escalation trail for a ticket, lowest level first.
func (s *EscalationService) History(ctx context.Context, ticketID string) ([]domain.Escalation, error) {
	records, err := s.escalations.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return records, nil
}

// LatestAssignee returns who holds the ticket per the escalation trail,
// nil when the ticket was never escalated.
func (s *EscalationService) LatestAssignee(ctx context.Context, ticketID string) (*string, error) {
	latest, err := s.escalations.Latest(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	return &latest.ToAssignee, nil
}

// CurrentLevel returns the ticket's escalation level, 0 when unescalated.
func (s *EscalationService) CurrentLevel(ctx context.Context, ticketID string) (int, error) {
	level, err := s.escalations.CurrentLevel(ctx, ticketID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return level, nil
}

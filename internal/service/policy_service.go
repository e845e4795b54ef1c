package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ticketops/sla-engine/internal/domain"
	"github.com/ticketops/sla-engine/internal/repository"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

// PolicyService owns SLA policy administration and resolution.
type PolicyService struct {
	policies repository.PolicyRepository
}

// NewPolicyService constructs the service.
func NewPolicyService(policies repository.PolicyRepository) *PolicyService {
	return &PolicyService{policies: policies}
}

// PolicyCreateInput describes policy creation payload.
type PolicyCreateInput struct {
	ApplicationID         string
	Priority              domain.TicketPriority
	ResponseTargetHours   float64
	ResolutionTargetHours float64
	EscalationTargetHours float64
}

// PolicyUpdateInput describes mutable policy fields. Policies are never
// deleted; Active=false deactivates them while keeping history intact.
type PolicyUpdateInput struct {
	ResponseTargetHours   *float64
	ResolutionTargetHours *float64
	EscalationTargetHours *float64
	Active                *bool
}

// Resolve returns the single active policy for the pair, or POLICY_NOT_FOUND.
// Callers must treat the miss as "not monitored", never assume a default.
func (s *PolicyService) Resolve(ctx context.Context, applicationID string, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	policy, err := s.policies.ResolveActive(ctx, applicationID, priority)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewPolicyNotFound(applicationID, string(priority))
		}
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

// Create registers a new policy for an (application, priority) pair.
func (s *PolicyService) Create(ctx context.Context, actorID string, input PolicyCreateInput) (*domain.SlaPolicy, error) {
	if input.ApplicationID == "" {
		return nil, apperrors.NewValidationError("application_id is required", nil)
	}
	if !domain.KnownPriority(input.Priority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}
	if input.ResponseTargetHours <= 0 || input.ResolutionTargetHours <= 0 || input.EscalationTargetHours <= 0 {
		return nil, apperrors.NewValidationError("target hours must be positive", nil)
	}

	policy := &domain.SlaPolicy{
		ApplicationID:         input.ApplicationID,
		Priority:              input.Priority,
		ResponseTargetHours:   input.ResponseTargetHours,
		ResolutionTargetHours: input.ResolutionTargetHours,
		EscalationTargetHours: input.EscalationTargetHours,
		Active:                true,
		CreatedBy:             actorID,
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		if errors.Is(err, repository.ErrDuplicateActivePolicy) {
			return nil, apperrors.NewConflict("active policy already exists", map[string]any{
				"application_id": input.ApplicationID,
				"priority":       input.Priority,
			})
		}
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

// Update adjusts targets or the active flag of an existing policy.
func (s *PolicyService) Update(ctx context.Context, id string, input PolicyUpdateInput) (*domain.SlaPolicy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("sla policy", map[string]any{"policy_id": id})
		}
		return nil, apperrors.MapError(err)
	}

	if input.ResponseTargetHours != nil {
		policy.ResponseTargetHours = *input.ResponseTargetHours
	}
	if input.ResolutionTargetHours != nil {
		policy.ResolutionTargetHours = *input.ResolutionTargetHours
	}
	if input.EscalationTargetHours != nil {
		policy.EscalationTargetHours = *input.EscalationTargetHours
	}
	if input.Active != nil {
		policy.Active = *input.Active
	}
	if policy.ResponseTargetHours <= 0 || policy.ResolutionTargetHours <= 0 || policy.EscalationTargetHours <= 0 {
		return nil, apperrors.NewValidationError("target hours must be positive", nil)
	}

	if err := s.policies.Update(ctx, policy); err != nil {
		if errors.Is(err, repository.ErrDuplicateActivePolicy) {
			return nil, apperrors.NewConflict("active policy already exists", map[string]any{
				"application_id": policy.ApplicationID,
				"priority":       policy.Priority,
			})
		}
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

// Get fetches a policy by id.
func (s *PolicyService) Get(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("sla policy", map[string]any{"policy_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

// List returns policies matching the filter.
func (s *PolicyService) List(ctx context.Context, filter repository.PolicyFilter) ([]domain.SlaPolicy, error) {
	policies, err := s.policies.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return policies, nil
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketops/sla-engine/internal/domain"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

func TestResolveFailsClosedWithoutPolicy(t *testing.T) {
	svc := NewPolicyService(newFakePolicyRepo())

	_, err := svc.Resolve(context.Background(), "app-1", domain.TicketPriorityHigh)
	require.Error(t, err)
	assert.True(t, apperrors.IsPolicyNotFound(err))
}

func TestResolveIgnoresInactivePolicies(t *testing.T) {
	inactive := testPolicy()
	inactive.Active = false
	svc := NewPolicyService(newFakePolicyRepo(inactive))

	_, err := svc.Resolve(context.Background(), inactive.ApplicationID, inactive.Priority)
	require.Error(t, err)
	assert.True(t, apperrors.IsPolicyNotFound(err))
}

func TestCreatePolicyValidation(t *testing.T) {
	svc := NewPolicyService(newFakePolicyRepo())

	cases := []struct {
		name  string
		input PolicyCreateInput
	}{
		{"missing application", PolicyCreateInput{
			Priority:              domain.TicketPriorityHigh,
			ResponseTargetHours:   1,
			ResolutionTargetHours: 8,
			EscalationTargetHours: 4,
		}},
		{"unknown priority", PolicyCreateInput{
			ApplicationID:         "app-1",
			Priority:              "catastrophic",
			ResponseTargetHours:   1,
			ResolutionTargetHours: 8,
			EscalationTargetHours: 4,
		}},
		{"non-positive target", PolicyCreateInput{
			ApplicationID:         "app-1",
			Priority:              domain.TicketPriorityHigh,
			ResponseTargetHours:   0,
			ResolutionTargetHours: 8,
			EscalationTargetHours: 4,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "admin-1", tc.input)
			require.Error(t, err)
			assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
		})
	}
}

func TestCreateRejectsSecondActivePolicyForPair(t *testing.T) {
	svc := NewPolicyService(newFakePolicyRepo())

	input := PolicyCreateInput{
		ApplicationID:         "app-1",
		Priority:              domain.TicketPriorityHigh,
		ResponseTargetHours:   1,
		ResolutionTargetHours: 8,
		EscalationTargetHours: 4,
	}
	first, err := svc.Create(context.Background(), "admin-1", input)
	require.NoError(t, err)
	assert.True(t, first.Active)

	_, err = svc.Create(context.Background(), "admin-1", input)
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
}

func TestUpdatePolicyTargets(t *testing.T) {
	policy := testPolicy()
	svc := NewPolicyService(newFakePolicyRepo(policy))

	newTarget := 2.0
	updated, err := svc.Update(context.Background(), policy.ID, PolicyUpdateInput{
		ResponseTargetHours: &newTarget,
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, updated.ResponseTargetHours)
	assert.Equal(t, policy.ResolutionTargetHours, updated.ResolutionTargetHours)

	invalid := -1.0
	_, err = svc.Update(context.Background(), policy.ID, PolicyUpdateInput{
		ResolutionTargetHours: &invalid,
	})
	require.Error(t, err)

	_, err = svc.Update(context.Background(), "nope", PolicyUpdateInput{})
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}

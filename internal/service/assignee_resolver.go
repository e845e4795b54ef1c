package service

import (
	"context"
	"errors"

	"github.com/ticketops/sla-engine/internal/domain"
)

// TierAssignees resolves escalation targets from a static, ordered contact
// list: level 1 goes to the first entry, level 2 to the second, and levels
// past the end of the list all land on the final entry.
type TierAssignees struct {
	contacts []string
}

// NewTierAssignees constructs the resolver.
func NewTierAssignees(contacts []string) *TierAssignees {
	return &TierAssignees{contacts: contacts}
}

// NextAssignee implements AssigneeResolver.
func (t *TierAssignees) NextAssignee(_ context.Context, _ *domain.Ticket, level int) (string, error) {
	if len(t.contacts) == 0 {
		return "", errors.New("no escalation contacts configured")
	}
	idx := level - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(t.contacts) {
		idx = len(t.contacts) - 1
	}
	return t.contacts[idx], nil
}

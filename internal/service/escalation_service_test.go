package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ticketops/sla-engine/internal/domain"
	"github.com/ticketops/sla-engine/internal/events"
	"github.com/ticketops/sla-engine/internal/observability"
	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

type escalationFixture struct {
	service     *EscalationService
	tickets     *fakeTicketRepo
	escalations *fakeEscalationRepo
	locker      *fakeLocker
	dispatcher  *captureDispatcher
}

func newEscalationFixture(t *testing.T, tickets ...*domain.Ticket) *escalationFixture {
	t.Helper()
	fixture := &escalationFixture{
		tickets:     newFakeTicketRepo(tickets...),
		escalations: newFakeEscalationRepo(),
		locker:      newFakeLocker(),
		dispatcher:  &captureDispatcher{},
	}
	fixture.service = NewEscalationService(EscalationDependencies{
		TicketRepo:     fixture.tickets,
		EscalationRepo: fixture.escalations,
		Locker:         fixture.locker,
		Assignees:      &fakeAssignees{assignee: "tier2-oncall"},
		Dispatcher:     fixture.dispatcher,
		Logger:         zap.NewNop(),
		Metrics:        observability.NewMetrics(),
	})
	fixture.service.lockRetryDelay = time.Millisecond
	return fixture
}

func TestEscalateAssignsSequentialLevels(t *testing.T) {
	firstAssignee := "agent-1"
	ticket := openTicket("t1", time.Now().Add(-time.Hour))
	ticket.AssigneeID = &firstAssignee

	f := newEscalationFixture(t, ticket)
	actor := "supervisor-1"

	first, err := f.service.Escalate(context.Background(), EscalateInput{
		TicketID:   "t1",
		ToAssignee: "agent-2",
		Reason:     domain.EscalationReasonManual,
		ActorID:    &actor,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Level)
	require.NotNil(t, first.FromAssignee)
	assert.Equal(t, "agent-1", *first.FromAssignee)

	second, err := f.service.Escalate(context.Background(), EscalateInput{
		TicketID:   "t1",
		ToAssignee: "agent-3",
		Reason:     domain.EscalationReasonComplexity,
		ActorID:    &actor,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Level)
	require.NotNil(t, second.FromAssignee)
	assert.Equal(t, "agent-2", *second.FromAssignee, "escalation hands the ticket over")

	level, err := f.service.CurrentLevel(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, level)

	assert.Len(t, f.dispatcher.published(events.EventEscalation), 2)
}

func TestEscalateConcurrentRequestsNeverSkipOrReuseLevels(t *testing.T) {
	f := newEscalationFixture(t, openTicket("t1", time.Now().Add(-time.Hour)))
	actor := "supervisor-1"

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Escalate(context.Background(), EscalateInput{
				TicketID:   "t1",
				ToAssignee: "agent-x",
				Reason:     domain.EscalationReasonManual,
				ActorID:    &actor,
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "request %d", i)
	}

	history, err := f.service.History(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, history, workers)

	seen := make(map[int]bool)
	for _, e := range history {
		assert.False(t, seen[e.Level], "level %d assigned twice", e.Level)
		seen[e.Level] = true
	}
	for level := 1; level <= workers; level++ {
		assert.True(t, seen[level], "level %d missing from the chain", level)
	}
}

func TestEscalateWaitsOutHeldTicketLock(t *testing.T) {
	f := newEscalationFixture(t, openTicket("t1", time.Now().Add(-time.Hour)))
	actor := "supervisor-1"

	unlock, err := f.locker.Lock(context.Background(), "t1", time.Minute)
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		unlock()
	}()

	escalation, err := f.service.Escalate(context.Background(), EscalateInput{
		TicketID:   "t1",
		ToAssignee: "agent-2",
		Reason:     domain.EscalationReasonManual,
		ActorID:    &actor,
	})
	require.NoError(t, err, "a held lock serializes the caller, it does not reject it")
	assert.Equal(t, 1, escalation.Level)
}

func TestEscalateGivesUpWhenLockNeverReleased(t *testing.T) {
	f := newEscalationFixture(t, openTicket("t1", time.Now().Add(-time.Hour)))
	f.service.lockWait = 20 * time.Millisecond
	actor := "supervisor-1"

	unlock, err := f.locker.Lock(context.Background(), "t1", time.Minute)
	require.NoError(t, err)
	defer unlock()

	_, err = f.service.Escalate(context.Background(), EscalateInput{
		TicketID:   "t1",
		ToAssignee: "agent-2",
		Reason:     domain.EscalationReasonManual,
		ActorID:    &actor,
	})
	require.Error(t, err)
	assert.Equal(t, "ESCALATION_CONFLICT", apperrors.ToDomainError(err).Code)
}

func TestEscalateRejectsClosedTicket(t *testing.T) {
	ticket := openTicket("t1", time.Now().Add(-time.Hour))
	ticket.Status = domain.TicketStatusClosed

	f := newEscalationFixture(t, ticket)
	actor := "supervisor-1"

	_, err := f.service.Escalate(context.Background(), EscalateInput{
		TicketID:   "t1",
		ToAssignee: "agent-2",
		Reason:     domain.EscalationReasonManual,
		ActorID:    &actor,
	})
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "CONFLICT", domainErr.Code)
}

func TestEscalateValidatesInput(t *testing.T) {
	f := newEscalationFixture(t, openTicket("t1", time.Now().Add(-time.Hour)))
	actor := "supervisor-1"

	_, err := f.service.Escalate(context.Background(), EscalateInput{
		TicketID: "t1",
		Reason:   domain.EscalationReasonManual,
		ActorID:  &actor,
	})
	require.Error(t, err, "missing assignee")

	_, err = f.service.Escalate(context.Background(), EscalateInput{
		TicketID:   "t1",
		ToAssignee: "agent-2",
		Reason:     domain.EscalationReason("whim"),
		ActorID:    &actor,
	})
	require.Error(t, err, "unknown reason")

	_, err = f.service.Escalate(context.Background(), EscalateInput{
		TicketID:   "missing",
		ToAssignee: "agent-2",
		Reason:     domain.EscalationReasonManual,
		ActorID:    &actor,
	})
	require.Error(t, err, "unknown ticket")
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}

func TestAutoEscalateUsesAssignmentStrategy(t *testing.T) {
	f := newEscalationFixture(t, openTicket("t1", time.Now().Add(-time.Hour)))

	ticket, err := f.tickets.GetByID(context.Background(), "t1")
	require.NoError(t, err)

	violation := &domain.SlaViolation{ID: "v1", TicketID: "t1", Kind: domain.ViolationEscalationTime}
	require.NoError(t, f.service.AutoEscalate(context.Background(), ticket, violation))

	history, err := f.service.History(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "tier2-oncall", history[0].ToAssignee)
	assert.Equal(t, domain.EscalationReasonSlaViolation, history[0].Reason)
	assert.True(t, history[0].Automatic)
	assert.Nil(t, history[0].EscalatedBy)
	require.NotNil(t, history[0].Comment)
	assert.Contains(t, *history[0].Comment, "v1")
}

func TestLatestAssigneeFollowsEscalationTrail(t *testing.T) {
	f := newEscalationFixture(t, openTicket("t1", time.Now().Add(-time.Hour)))
	actor := "supervisor-1"

	holder, err := f.service.LatestAssignee(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, holder, "unescalated ticket has no escalation holder")

	for _, assignee := range []string{"agent-2", "agent-3"} {
		_, err = f.service.Escalate(context.Background(), EscalateInput{
			TicketID:   "t1",
			ToAssignee: assignee,
			Reason:     domain.EscalationReasonManual,
			ActorID:    &actor,
		})
		require.NoError(t, err)
	}

	holder, err = f.service.LatestAssignee(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, "agent-3", *holder)
}

func TestEscalateUpdatesTicketAssignee(t *testing.T) {
	f := newEscalationFixture(t, openTicket("t1", time.Now().Add(-time.Hour)))
	actor := "supervisor-1"

	_, err := f.service.Escalate(context.Background(), EscalateInput{
		TicketID:   "t1",
		ToAssignee: "agent-9",
		Reason:     domain.EscalationReasonPriorityChange,
		ActorID:    &actor,
	})
	require.NoError(t, err)

	ticket, err := f.tickets.GetByID(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, "agent-9", *ticket.AssigneeID)
}

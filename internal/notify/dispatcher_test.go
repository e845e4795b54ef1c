package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jackc/pgx/v5"

	"github.com/ticketops/sla-engine/internal/domain"
	"github.com/ticketops/sla-engine/internal/observability"
	"github.com/ticketops/sla-engine/internal/repository"
)

type memoryLogRepo struct {
	mu        sync.Mutex
	logs      map[string]*domain.NotificationLog
	claimedAt map[string]time.Time
}

func newMemoryLogRepo() *memoryLogRepo {
	return &memoryLogRepo{
		logs:      make(map[string]*domain.NotificationLog),
		claimedAt: make(map[string]time.Time),
	}
}

func (r *memoryLogRepo) Insert(_ context.Context, log *domain.NotificationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.CreatedAt = time.Now()
	copied := *log
	r.logs[log.ID] = &copied
	return nil
}

func (r *memoryLogRepo) MarkSent(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok || log.Status != domain.NotificationPending {
		return pgx.ErrNoRows
	}
	log.Status = domain.NotificationSent
	log.SentAt = &at
	return nil
}

func (r *memoryLogRepo) MarkDelivered(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok || log.Status != domain.NotificationSent {
		return pgx.ErrNoRows
	}
	log.Status = domain.NotificationDelivered
	log.DeliveredAt = &at
	return nil
}

func (r *memoryLogRepo) MarkFailed(_ context.Context, id string, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok || log.Status != domain.NotificationPending {
		return pgx.ErrNoRows
	}
	log.Status = domain.NotificationFailed
	log.ErrorMessage = &errorMessage
	return nil
}

func (r *memoryLogRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]domain.NotificationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []domain.NotificationLog
	for id, log := range r.logs {
		if len(due) >= limit {
			break
		}
		if _, claimed := r.claimedAt[id]; claimed {
			continue
		}
		if log.Status == domain.NotificationPending && log.ScheduledAt != nil && !log.ScheduledAt.After(now) {
			r.claimedAt[id] = now
			due = append(due, *log)
		}
	}
	return due, nil
}

func (r *memoryLogRepo) FailStaleClaims(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed int64
	for id, at := range r.claimedAt {
		log := r.logs[id]
		if log == nil || log.Status != domain.NotificationPending || !at.Before(cutoff) {
			continue
		}
		message := "delivery interrupted after claim"
		log.Status = domain.NotificationFailed
		log.ErrorMessage = &message
		failed++
	}
	return failed, nil
}

func (r *memoryLogRepo) GetByID(_ context.Context, id string) (*domain.NotificationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *log
	return &copied, nil
}

func (r *memoryLogRepo) List(_ context.Context, _ repository.NotificationLogFilter) ([]domain.NotificationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var logs []domain.NotificationLog
	for _, log := range r.logs {
		logs = append(logs, *log)
	}
	return logs, nil
}

func (r *memoryLogRepo) get(t *testing.T, id string) *domain.NotificationLog {
	t.Helper()
	log, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	return log
}

// stubChannel scripts delivery outcomes per recipient.
type stubChannel struct {
	kind      domain.NotificationChannel
	confirmed bool
	err       error
	block     time.Duration

	mu         sync.Mutex
	deliveries []Delivery
}

func (c *stubChannel) Kind() domain.NotificationChannel { return c.kind }

func (c *stubChannel) Deliver(ctx context.Context, d Delivery) (Outcome, error) {
	if c.block > 0 {
		select {
		case <-time.After(c.block):
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
	c.mu.Lock()
	c.deliveries = append(c.deliveries, d)
	c.mu.Unlock()
	if c.err != nil {
		return Outcome{}, c.err
	}
	return Outcome{Confirmed: c.confirmed}, nil
}

func newTestDispatcher(repo *memoryLogRepo, channels ...Channel) *Dispatcher {
	return NewDispatcher(repo, channels, time.Second, zap.NewNop(), observability.NewMetrics())
}

func chatInstruction(recipients ...string) Instruction {
	ticketID := "t1"
	return Instruction{
		TicketID:   &ticketID,
		Channel:    domain.ChannelChat,
		Recipients: recipients,
		Subject:    "subject",
		Body:       "body",
	}
}

func TestDispatchMarksSentForUnconfirmedChannel(t *testing.T) {
	repo := newMemoryLogRepo()
	channel := &stubChannel{kind: domain.ChannelChat}
	d := newTestDispatcher(repo, channel)

	logs, err := d.Dispatch(context.Background(), chatInstruction("#ops"))
	require.NoError(t, err)
	require.Len(t, logs, 1)

	stored := repo.get(t, logs[0].ID)
	assert.Equal(t, domain.NotificationSent, stored.Status)
	require.NotNil(t, stored.SentAt)
	assert.Nil(t, stored.DeliveredAt)
	require.Len(t, channel.deliveries, 1)
	assert.Equal(t, "#ops", channel.deliveries[0].Recipient)
}

func TestDispatchPromotesToDeliveredOnConfirmation(t *testing.T) {
	repo := newMemoryLogRepo()
	d := newTestDispatcher(repo, &stubChannel{kind: domain.ChannelChat, confirmed: true})

	logs, err := d.Dispatch(context.Background(), chatInstruction("#ops"))
	require.NoError(t, err)

	stored := repo.get(t, logs[0].ID)
	assert.Equal(t, domain.NotificationDelivered, stored.Status)
	require.NotNil(t, stored.SentAt)
	require.NotNil(t, stored.DeliveredAt)
	assert.True(t, stored.Status.Terminal())
}

func TestDispatchRecordsFailureWithMessage(t *testing.T) {
	repo := newMemoryLogRepo()
	d := newTestDispatcher(repo, &stubChannel{
		kind: domain.ChannelChat,
		err:  errors.New("webhook refused: 503"),
	})

	logs, err := d.Dispatch(context.Background(), chatInstruction("#ops"))
	require.NoError(t, err, "delivery failure is a log state, not a dispatch error")

	stored := repo.get(t, logs[0].ID)
	assert.Equal(t, domain.NotificationFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "503")
	assert.Nil(t, stored.SentAt)
}

func TestDispatchUnknownChannelFails(t *testing.T) {
	repo := newMemoryLogRepo()
	d := newTestDispatcher(repo) // no channels configured

	logs, err := d.Dispatch(context.Background(), chatInstruction("#ops"))
	require.NoError(t, err)

	stored := repo.get(t, logs[0].ID)
	assert.Equal(t, domain.NotificationFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "chat")
}

func TestDispatchTimesOutSlowChannel(t *testing.T) {
	repo := newMemoryLogRepo()
	channel := &stubChannel{kind: domain.ChannelChat, block: 5 * time.Second}
	d := NewDispatcher(repo, []Channel{channel}, 20*time.Millisecond, zap.NewNop(), observability.NewMetrics())

	logs, err := d.Dispatch(context.Background(), chatInstruction("#ops"))
	require.NoError(t, err)

	stored := repo.get(t, logs[0].ID)
	assert.Equal(t, domain.NotificationFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "context deadline exceeded")
}

func TestDispatchDelayedStaysPendingWithSchedule(t *testing.T) {
	repo := newMemoryLogRepo()
	channel := &stubChannel{kind: domain.ChannelChat}
	d := newTestDispatcher(repo, channel)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	instr := chatInstruction("#ops")
	instr.Delay = 15 * time.Minute

	logs, err := d.Dispatch(context.Background(), instr)
	require.NoError(t, err)

	stored := repo.get(t, logs[0].ID)
	assert.Equal(t, domain.NotificationPending, stored.Status)
	require.NotNil(t, stored.ScheduledAt)
	assert.Equal(t, base.Add(15*time.Minute), *stored.ScheduledAt)
	assert.Empty(t, channel.deliveries, "delayed instruction must not deliver inline")

	// the delay worker path: claim once due, then redeliver
	due, err := repo.ClaimDue(context.Background(), base.Add(16*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	d.Redeliver(context.Background(), &due[0])
	assert.Equal(t, domain.NotificationSent, repo.get(t, due[0].ID).Status)
	require.Len(t, channel.deliveries, 1)
}

func TestDispatchOneLogPerRecipient(t *testing.T) {
	repo := newMemoryLogRepo()
	channel := &stubChannel{kind: domain.ChannelChat}
	d := newTestDispatcher(repo, channel)

	logs, err := d.Dispatch(context.Background(), chatInstruction("#ops", "#leads", "#oncall"))
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Len(t, channel.deliveries, 3)

	seen := make(map[string]bool)
	for _, log := range logs {
		seen[log.Recipient] = true
	}
	assert.Len(t, seen, 3)
}

func TestDispatchAllRunsEveryInstruction(t *testing.T) {
	repo := newMemoryLogRepo()
	chat := &stubChannel{kind: domain.ChannelChat}
	email := &stubChannel{kind: domain.ChannelEmail}
	d := newTestDispatcher(repo, chat, email)

	ticketID := "t1"
	d.DispatchAll(context.Background(), []Instruction{
		chatInstruction("#ops"),
		{
			TicketID:   &ticketID,
			Channel:    domain.ChannelEmail,
			Recipients: []string{"oncall@example.com"},
			Subject:    "s",
			Body:       "b",
		},
	})

	assert.Len(t, chat.deliveries, 1)
	assert.Len(t, email.deliveries, 1)
}

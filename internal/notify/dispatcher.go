package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ticketops/sla-engine/internal/domain"
	"github.com/ticketops/sla-engine/internal/observability"
	"github.com/ticketops/sla-engine/internal/repository"
)

// Dispatcher executes dispatch instructions. Every attempt leaves a
// NotificationLog behind: pending while a delayed action waits for its
// scheduled time, then sent (and possibly delivered) or failed. Failures are
// recorded, never retried here.
type Dispatcher struct {
	logs     repository.NotificationLogRepository
	channels map[domain.NotificationChannel]Channel
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewDispatcher builds a dispatcher over the given channels.
func NewDispatcher(logs repository.NotificationLogRepository, channels []Channel, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Dispatcher {
	byKind := make(map[domain.NotificationChannel]Channel, len(channels))
	for _, ch := range channels {
		byKind[ch.Kind()] = ch
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		logs:     logs,
		channels: byKind,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Dispatch executes one instruction, producing one log per recipient.
// Delayed instructions are persisted as pending with a scheduled time and
// picked up later by the delay worker; the rest are delivered synchronously.
// Delivery failures end up as failed logs, not as a returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, instr Instruction) ([]domain.NotificationLog, error) {
	logs := make([]domain.NotificationLog, 0, len(instr.Recipients))
	for _, recipient := range instr.Recipients {
		log := domain.NotificationLog{
			ID:          uuid.NewString(),
			RuleID:      instr.RuleID,
			TicketID:    instr.TicketID,
			Channel:     instr.Channel,
			Recipient:   recipient,
			Subject:     instr.Subject,
			Content:     instr.Body,
			Status:      domain.NotificationPending,
			TriggeredBy: instr.TriggeredBy,
			Metadata:    instr.Metadata,
		}
		if instr.Delay > 0 {
			at := d.now().Add(instr.Delay)
			log.ScheduledAt = &at
		}
		if err := d.logs.Insert(ctx, &log); err != nil {
			return logs, err
		}
		if log.ScheduledAt == nil {
			d.deliver(ctx, &log)
		}
		logs = append(logs, log)
	}
	return logs, nil
}

// DispatchAll runs instructions concurrently. Each instruction is attempted
// at most once; ordering between channels is not guaranteed.
func (d *Dispatcher) DispatchAll(ctx context.Context, instrs []Instruction) {
	var wg sync.WaitGroup
	for _, instr := range instrs {
		wg.Add(1)
		go func(instr Instruction) {
			defer wg.Done()
			if _, err := d.Dispatch(ctx, instr); err != nil {
				d.logger.Error("dispatch instruction failed",
					zap.String("channel", string(instr.Channel)),
					zap.Error(err))
			}
		}(instr)
	}
	wg.Wait()
}

// Redeliver delivers a previously claimed delayed log.
func (d *Dispatcher) Redeliver(ctx context.Context, log *domain.NotificationLog) {
	d.deliver(ctx, log)
}

func (d *Dispatcher) deliver(ctx context.Context, log *domain.NotificationLog) {
	channel, ok := d.channels[log.Channel]
	if !ok {
		d.fail(ctx, log, "channel not configured: "+string(log.Channel))
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outcome, err := channel.Deliver(attemptCtx, Delivery{
		Recipient: log.Recipient,
		Subject:   log.Subject,
		Body:      log.Content,
		TicketID:  log.TicketID,
	})
	if err != nil {
		d.fail(ctx, log, err.Error())
		return
	}

	sentAt := d.now()
	if err := d.logs.MarkSent(ctx, log.ID, sentAt); err != nil {
		d.logger.Error("mark sent failed", zap.String("log_id", log.ID), zap.Error(err))
		return
	}
	log.Status = domain.NotificationSent
	log.SentAt = &sentAt
	d.metrics.RecordDispatch(string(log.Channel), string(log.Status))

	if outcome.Confirmed {
		deliveredAt := d.now()
		if err := d.logs.MarkDelivered(ctx, log.ID, deliveredAt); err != nil {
			d.logger.Error("mark delivered failed", zap.String("log_id", log.ID), zap.Error(err))
			return
		}
		log.Status = domain.NotificationDelivered
		log.DeliveredAt = &deliveredAt
		d.metrics.RecordDispatch(string(log.Channel), string(log.Status))
	}
}

func (d *Dispatcher) fail(ctx context.Context, log *domain.NotificationLog, message string) {
	if err := d.logs.MarkFailed(ctx, log.ID, message); err != nil {
		d.logger.Error("mark failed failed", zap.String("log_id", log.ID), zap.Error(err))
		return
	}
	log.Status = domain.NotificationFailed
	log.ErrorMessage = &message
	d.metrics.RecordDispatch(string(log.Channel), string(log.Status))
	d.logger.Warn("notification delivery failed",
		zap.String("log_id", log.ID),
		zap.String("channel", string(log.Channel)),
		zap.String("recipient", log.Recipient),
		zap.String("error", message))
}

package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ticketops/sla-engine/internal/notify"
	"github.com/ticketops/sla-engine/internal/repository"
)

// claimLease bounds how long a claimed row may sit in pending before the
// claimer is presumed dead and the row is failed. Delivery happens right
// after the claim, so a claim this old means the process crashed in
// between; the row is not redelivered, only moved out of pending.
const claimLease = 5 * time.Minute

// DelayWorker resumes delayed notifications. The pending log row with its
// scheduled_at is the durable timer: the worker claims due rows atomically
// and hands them back to the dispatcher, so delayed sends survive a process
// restart.
type DelayWorker struct {
	logs       repository.NotificationLogRepository
	dispatcher *notify.Dispatcher
	interval   time.Duration
	batchSize  int
	logger     *zap.Logger
}

// NewDelayWorker constructs the worker.
func NewDelayWorker(logs repository.NotificationLogRepository, dispatcher *notify.Dispatcher, interval time.Duration, batchSize int, logger *zap.Logger) *DelayWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &DelayWorker{
		logs:       logs,
		dispatcher: dispatcher,
		interval:   interval,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled. The first poll happens immediately so
// notifications that fell due while the process was down go out on startup.
func (w *DelayWorker) Run(ctx context.Context) {
	w.logger.Info("delay worker started", zap.Duration("interval", w.interval))
	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("delay worker stopped")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *DelayWorker) poll(ctx context.Context) {
	stale, err := w.logs.FailStaleClaims(ctx, time.Now().Add(-claimLease))
	if err != nil {
		w.logger.Error("expire stale notification claims failed", zap.Error(err))
	} else if stale > 0 {
		w.logger.Warn("failed notifications abandoned mid-delivery", zap.Int64("count", stale))
	}

	due, err := w.logs.ClaimDue(ctx, time.Now(), w.batchSize)
	if err != nil {
		w.logger.Error("claim due notifications failed", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	w.logger.Info("delivering delayed notifications", zap.Int("count", len(due)))

	var wg sync.WaitGroup
	for i := range due {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.dispatcher.Redeliver(ctx, &due[i])
		}(i)
	}
	wg.Wait()
}

package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ticketops/sla-engine/internal/service"
)

// SweepWorker drives the violation detector on a fixed interval.
type SweepWorker struct {
	detector *service.DetectorService
	interval time.Duration
	logger   *zap.Logger
}

// NewSweepWorker constructs the worker.
func NewSweepWorker(detector *service.DetectorService, interval time.Duration, logger *zap.Logger) *SweepWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SweepWorker{detector: detector, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. A failed sweep is logged; remaining
// tickets simply wait for the next tick.
func (w *SweepWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("sweep worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sweep worker stopped")
			return
		case <-ticker.C:
			if _, err := w.detector.Sweep(ctx); err != nil {
				w.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

package recurringcharge

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Worker periodically charges recurring schedules that have come due
type Worker struct {
	processor Processor
	interval  time.Duration
	logger    *slog.Logger
	cron      *cron.Cron

	// Guards against overlapping runs when a sweep outlives the interval
	running atomic.Bool
}

// NewWorker creates a new recurring charge worker
func NewWorker(processor Processor, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		processor: processor,
		interval:  interval,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Name returns the worker name
func (w *Worker) Name() string {
	return "recurring-charge"
}

// Start starts the recurring charge worker
func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(fmt.Sprintf("@every %s", w.interval), func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Panic in recurring charge worker", "panic", r)
			}
		}()

		if !w.running.CompareAndSwap(false, true) {
			w.logger.Warn("Previous recurring charge sweep still running, skipping tick")
			return
		}
		defer w.running.Store(false)

		ctx := context.Background()
		if err := w.run(ctx); err != nil {
			w.logger.Error("Recurring charge worker failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule recurring charge worker: %w", err)
	}

	w.cron.Start()
	w.logger.Info("Recurring charge worker started", "interval", w.interval.String())
	return nil
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping recurring charge worker")
	w.cron.Stop()
}

// run executes one charge sweep over every due schedule
func (w *Worker) run(ctx context.Context) error {
	processed, err := w.processor.ProcessDue(ctx)
	if processed > 0 {
		w.logger.Info("Recurring charge sweep completed", "charged", processed)
	}
	if err != nil {
		return fmt.Errorf("process due schedules: %w", err)
	}
	return nil
}

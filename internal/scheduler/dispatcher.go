package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/metrics"
	"github.com/callwhen/callwhen/internal/repository"
	"github.com/robfig/cron/v3"
)

// Dispatcher turns due recurring definitions into ordinary delayed reminders.
type Dispatcher struct {
	recurring repository.RecurringRepository
	logger    *slog.Logger
	interval  time.Duration
}

func NewDispatcher(recurring repository.RecurringRepository, logger *slog.Logger, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		recurring: recurring,
		logger:    logger.With("component", "dispatcher"),
		interval:  interval,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", "interval", d.interval)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher shut down")
			return
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context) {
	fired, err := d.recurring.ClaimAndFire(ctx, 100, d.computeNext)
	if err != nil {
		d.logger.Error("dispatcher claim and fire", "error", err)
		return
	}
	if len(fired) > 0 {
		metrics.RecurringFiredTotal.Add(float64(len(fired)))
		d.logger.Info("dispatcher fired reminders", "count", len(fired))
	}
}

// computeNext returns the next future run time, skipping any missed runs.
func (d *Dispatcher) computeNext(rec *domain.RecurringReminder) time.Time {
	sched, err := cron.ParseStandard(rec.CronExpr)
	if err != nil {
		// Expression was validated on create; this should never happen.
		d.logger.Error("invalid cron expression in recurring reminder", "recurring_id", rec.ID, "cron_expr", rec.CronExpr, "error", err)
		return time.Now().Add(time.Hour) // safe fallback
	}

	next := sched.Next(rec.NextRunAt)
	now := time.Now()
	for next.Before(now) {
		next = sched.Next(next)
	}
	return next
}

package scheduler

import (
	"log/slog"
	"testing"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
)

func TestComputeNext(t *testing.T) {
	d := &Dispatcher{logger: slog.Default()}

	t.Run("advances to the next slot", func(t *testing.T) {
		rec := &domain.RecurringReminder{
			ID:        "rec-1",
			CronExpr:  "0 9 * * 1-5", // weekdays at 09:00
			NextRunAt: time.Now().Add(time.Minute),
		}
		next := d.computeNext(rec)
		if !next.After(time.Now()) {
			t.Errorf("computeNext = %v, want a future time", next)
		}
		if next.Hour() != 9 || next.Minute() != 0 {
			t.Errorf("computeNext = %v, want a 09:00 slot", next)
		}
	})

	t.Run("skips missed runs after downtime", func(t *testing.T) {
		rec := &domain.RecurringReminder{
			ID:        "rec-2",
			CronExpr:  "*/5 * * * *",
			NextRunAt: time.Now().Add(-48 * time.Hour),
		}
		next := d.computeNext(rec)
		if !next.After(time.Now()) {
			t.Errorf("computeNext = %v, want a future time after catching up", next)
		}
		if next.Sub(time.Now()) > 5*time.Minute {
			t.Errorf("computeNext = %v, want within the next five minutes", next)
		}
	})

	t.Run("invalid expression falls back instead of panicking", func(t *testing.T) {
		rec := &domain.RecurringReminder{
			ID:        "rec-3",
			CronExpr:  "not a cron",
			NextRunAt: time.Now(),
		}
		next := d.computeNext(rec)
		if !next.After(time.Now().Add(30 * time.Minute)) {
			t.Errorf("computeNext = %v, want the safety fallback", next)
		}
	})
}

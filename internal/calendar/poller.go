package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/metrics"
	"github.com/callwhen/callwhen/internal/repository"
)

// Poller periodically scans the event source and enqueues one reminder per
// upcoming event, due lead time before the event starts.
type Poller struct {
	source    EventSource
	reminders repository.ReminderRepository
	logger    *slog.Logger

	ownerID  string
	target   string
	interval time.Duration
	lead     time.Duration
	horizon  time.Duration

	now func() time.Time
}

func NewPoller(
	source EventSource,
	reminders repository.ReminderRepository,
	logger *slog.Logger,
	ownerID, target string,
	interval, lead time.Duration,
) *Poller {
	return &Poller{
		source:    source,
		reminders: reminders,
		logger:    logger.With("component", "calendar"),
		ownerID:   ownerID,
		target:    target,
		interval:  interval,
		lead:      lead,
		horizon:   time.Hour,
		now:       time.Now,
	}
}

func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("calendar poller started", "interval", p.interval, "lead", p.lead)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("calendar poller shut down")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	now := p.now()

	events, err := p.source.Upcoming(ctx, now, now.Add(p.horizon))
	if err != nil {
		p.logger.Error("fetch upcoming events", "error", err)
		return
	}

	scheduled := 0
	for _, ev := range events {
		if !ev.StartTime.After(now) {
			continue // already started
		}

		dueAt := ev.StartTime.Add(-p.lead)
		if dueAt.Before(now) {
			// Inside the lead window already; notify as soon as possible.
			dueAt = now
		}

		key := EventCorrelationKey(ev)

		// The unique index only covers live rows. An occurrence whose reminder
		// already completed or failed stays inside the poll horizon until the
		// event starts, so it must be checked against terminal rows too or
		// every later scan would schedule a fresh call.
		handled, err := p.reminders.ExistsByCorrelationKey(ctx, p.ownerID, key)
		if err != nil {
			p.logger.Error("check event reminder", "event_id", ev.ID, "error", err)
			continue
		}
		if handled {
			continue
		}

		reminder := &domain.Reminder{
			ID:             domain.NewReminderID(key, now),
			OwnerID:        p.ownerID,
			CorrelationKey: key,
			Payload: domain.CallPayload{
				Message: eventMessage(ev),
				Target:  p.target,
			},
			Status:            domain.StatusDelayed,
			DueAt:             dueAt,
			CreatedAt:         now,
			AttemptsRemaining: 1,
		}

		if _, err := p.reminders.Create(ctx, reminder); err != nil {
			if errors.Is(err, domain.ErrDuplicateReminder) {
				continue // this occurrence was scheduled on an earlier poll
			}
			p.logger.Error("schedule event reminder", "event_id", ev.ID, "error", err)
			continue
		}
		scheduled++
		p.logger.Info("scheduled event reminder", "event_id", ev.ID, "title", ev.Title, "due_at", dueAt)
	}

	if scheduled > 0 {
		metrics.CalendarScheduledTotal.Add(float64(scheduled))
	}
}

// EventCorrelationKey identifies one occurrence of one event. A rescheduled
// event gets a new start time and therefore a new reminder.
func EventCorrelationKey(ev Event) string {
	return fmt.Sprintf("cal:%s:%d", ev.ID, ev.StartTime.Unix())
}

func eventMessage(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s starts at %s", ev.Title, ev.StartTime.Format("3:04pm"))
	if ev.Location != "" {
		fmt.Fprintf(&b, " in %s", ev.Location)
	}
	if n := len(ev.Attendees); n > 0 {
		fmt.Fprintf(&b, " with %d attendees", n)
	}
	return b.String()
}

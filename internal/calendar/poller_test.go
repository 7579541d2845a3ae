package calendar

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
)

type fakeSource struct {
	events []Event
	err    error
}

func (f *fakeSource) Upcoming(context.Context, time.Time, time.Time) ([]Event, error) {
	return f.events, f.err
}

// captureRepo mirrors the stores: the unique constraint on a correlation key
// only holds while a row is live, but the key stays queryable after the row
// turns terminal.
type captureRepo struct {
	created []*domain.Reminder
}

func newCaptureRepo() *captureRepo {
	return &captureRepo{}
}

func (c *captureRepo) Create(_ context.Context, r *domain.Reminder) (*domain.Reminder, error) {
	for _, row := range c.created {
		if row.CorrelationKey != r.CorrelationKey {
			continue
		}
		if row.Status == domain.StatusDelayed || row.Status == domain.StatusActive {
			return nil, domain.ErrDuplicateReminder
		}
	}
	c.created = append(c.created, r)
	return r, nil
}

func (c *captureRepo) ExistsByCorrelationKey(_ context.Context, ownerID, key string) (bool, error) {
	for _, row := range c.created {
		if row.OwnerID == ownerID && row.CorrelationKey == key {
			return true, nil
		}
	}
	return false, nil
}
func (c *captureRepo) GetByID(context.Context, string, string) (*domain.Reminder, error) {
	return nil, domain.ErrReminderNotFound
}
func (c *captureRepo) ListByOwner(context.Context, string) ([]*domain.Reminder, error) {
	return nil, nil
}
func (c *captureRepo) Cancel(context.Context, string, string) (bool, error) { return false, nil }
func (c *captureRepo) Stats(context.Context) (domain.Stats, error) {
	return domain.Stats{}, nil
}
func (c *captureRepo) Claim(context.Context, string, int) ([]*domain.Reminder, error) {
	return nil, nil
}
func (c *captureRepo) UpdateHeartbeat(context.Context, string) error      { return nil }
func (c *captureRepo) Complete(context.Context, string, *string) error    { return nil }
func (c *captureRepo) FailTerminal(context.Context, string, string) error { return nil }
func (c *captureRepo) RetryAsNew(context.Context, *domain.Reminder, string, time.Time) (*domain.Reminder, error) {
	return nil, errors.New("not implemented")
}
func (c *captureRepo) RescheduleStale(context.Context, time.Time, int) (int, error) { return 0, nil }
func (c *captureRepo) FailStale(context.Context, time.Time, int) (int, error)       { return 0, nil }

var pollNow = time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC)

func newTestPoller(source EventSource, repo *captureRepo) *Poller {
	p := NewPoller(source, repo, slog.Default(), "owner-1", "+15550001111", time.Minute, 10*time.Minute)
	p.now = func() time.Time { return pollNow }
	return p
}

func TestPoll_SchedulesLeadTimeBeforeEvent(t *testing.T) {
	start := pollNow.Add(30 * time.Minute)
	source := &fakeSource{events: []Event{{
		ID:        "ev-1",
		Title:     "design review",
		StartTime: start,
		Location:  "room 4",
		Attendees: []string{"ana", "ben", "kai"},
	}}}
	repo := newCaptureRepo()

	newTestPoller(source, repo).poll(context.Background())

	if len(repo.created) != 1 {
		t.Fatalf("created %d reminders, want 1", len(repo.created))
	}
	rem := repo.created[0]
	if want := start.Add(-10 * time.Minute); !rem.DueAt.Equal(want) {
		t.Errorf("DueAt = %v, want %v", rem.DueAt, want)
	}
	if rem.CorrelationKey != EventCorrelationKey(source.events[0]) {
		t.Errorf("CorrelationKey = %q", rem.CorrelationKey)
	}
	msg := rem.Payload.Message
	for _, part := range []string{"design review", "10:30am", "room 4", "3 attendees"} {
		if !strings.Contains(msg, part) {
			t.Errorf("message %q missing %q", msg, part)
		}
	}
}

func TestPoll_EventInsideLeadWindowNotifiesNow(t *testing.T) {
	source := &fakeSource{events: []Event{{
		ID:        "ev-2",
		Title:     "1:1",
		StartTime: pollNow.Add(3 * time.Minute),
	}}}
	repo := newCaptureRepo()

	newTestPoller(source, repo).poll(context.Background())

	if len(repo.created) != 1 {
		t.Fatalf("created %d reminders, want 1", len(repo.created))
	}
	if !repo.created[0].DueAt.Equal(pollNow) {
		t.Errorf("DueAt = %v, want now", repo.created[0].DueAt)
	}
}

func TestPoll_SkipsStartedAndDuplicateEvents(t *testing.T) {
	events := []Event{
		{ID: "ev-past", Title: "already running", StartTime: pollNow.Add(-time.Minute)},
		{ID: "ev-3", Title: "retro", StartTime: pollNow.Add(45 * time.Minute)},
	}
	source := &fakeSource{events: events}
	repo := newCaptureRepo()
	p := newTestPoller(source, repo)

	p.poll(context.Background())
	p.poll(context.Background()) // second scan of the same window

	if len(repo.created) != 1 {
		t.Fatalf("created %d reminders, want 1 (started events skipped, repeats deduplicated)", len(repo.created))
	}
	if repo.created[0].CorrelationKey != EventCorrelationKey(events[1]) {
		t.Errorf("scheduled the wrong event: %q", repo.created[0].CorrelationKey)
	}
}

func TestPoll_CompletedOccurrenceIsNotRescheduled(t *testing.T) {
	source := &fakeSource{events: []Event{
		{ID: "ev-4", Title: "standup", StartTime: pollNow.Add(12 * time.Minute)},
	}}
	repo := newCaptureRepo()
	p := newTestPoller(source, repo)

	p.poll(context.Background())
	if len(repo.created) != 1 {
		t.Fatalf("created %d reminders, want 1", len(repo.created))
	}

	// The call goes out lead time before the event; the occurrence is still
	// inside the poll horizon when the next scan runs.
	repo.created[0].Status = domain.StatusCompleted

	p.poll(context.Background())
	if len(repo.created) != 1 {
		t.Errorf("poll after completion created %d reminders, want 1", len(repo.created))
	}
}

func TestPoll_SourceErrorSchedulesNothing(t *testing.T) {
	repo := newCaptureRepo()
	p := newTestPoller(&fakeSource{err: errors.New("feed unreachable")}, repo)

	p.poll(context.Background())

	if len(repo.created) != 0 {
		t.Errorf("created %d reminders on a failed fetch, want 0", len(repo.created))
	}
}

func TestEventCorrelationKey_DistinguishesOccurrences(t *testing.T) {
	ev := Event{ID: "ev-1", StartTime: pollNow}
	moved := Event{ID: "ev-1", StartTime: pollNow.Add(time.Hour)}
	if EventCorrelationKey(ev) == EventCorrelationKey(moved) {
		t.Error("rescheduled occurrence produced the same key")
	}
}

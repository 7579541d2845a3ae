package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createRecurring(t *testing.T, repo *RecurringRepository, name string, nextRunAt time.Time) *domain.RecurringReminder {
	t.Helper()
	rec, err := repo.Create(context.Background(), &domain.RecurringReminder{
		OwnerID:  "owner-1",
		Name:     name,
		CronExpr: "0 9 * * *",
		Payload: domain.CallPayload{
			Message: name,
			Target:  "+15550001111",
		},
		NextRunAt: nextRunAt,
	})
	if err != nil {
		t.Fatalf("create recurring %q: %v", name, err)
	}
	return rec
}

func TestClaimAndFire_InsertsReminderAndAdvances(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRecurringRepository(db, slog.Default())

	due := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	rec := createRecurring(t, repo, "daily standup", due)

	next := due.Add(24 * time.Hour)
	fired, err := repo.ClaimAndFire(ctx, 10, func(*domain.RecurringReminder) time.Time { return next })
	if err != nil {
		t.Fatalf("ClaimAndFire: %v", err)
	}

	if len(fired) != 1 {
		t.Fatalf("fired %d reminders, want 1", len(fired))
	}
	if want := fmt.Sprintf("rec:%s:%d", rec.ID, due.Unix()); fired[0].CorrelationKey != want {
		t.Errorf("CorrelationKey = %q, want %q", fired[0].CorrelationKey, want)
	}

	got, err := repo.GetByID(ctx, rec.ID, rec.OwnerID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.NextRunAt.Equal(next) {
		t.Errorf("NextRunAt = %v, want %v", got.NextRunAt, next)
	}
	if got.LastRunAt == nil {
		t.Error("LastRunAt not set after fire")
	}
}

func TestClaimAndFire_DuplicateFireSkipsWithoutStallingBatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	recurring := NewRecurringRepository(db, slog.Default())
	reminders := NewReminderRepository(db)

	due := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	first := createRecurring(t, recurring, "daily standup", due)
	second := createRecurring(t, recurring, "weekly review", due)

	// A live reminder with first's fire key already exists, as after a
	// dispatcher crash between insert and advance.
	key := fmt.Sprintf("rec:%s:%d", first.ID, due.Unix())
	if _, err := reminders.Create(ctx, &domain.Reminder{
		ID:                domain.NewReminderID(key, time.Now()),
		OwnerID:           first.OwnerID,
		CorrelationKey:    key,
		Payload:           first.Payload,
		Status:            domain.StatusDelayed,
		DueAt:             time.Now(),
		AttemptsRemaining: 1,
	}); err != nil {
		t.Fatalf("seed colliding reminder: %v", err)
	}

	next := due.Add(24 * time.Hour)
	fired, err := recurring.ClaimAndFire(ctx, 10, func(*domain.RecurringReminder) time.Time { return next })
	if err != nil {
		t.Fatalf("ClaimAndFire: %v", err)
	}

	if len(fired) != 1 {
		t.Fatalf("fired %d reminders, want 1 (the duplicate skipped)", len(fired))
	}
	if want := fmt.Sprintf("rec:%s:%d", second.ID, due.Unix()); fired[0].CorrelationKey != want {
		t.Errorf("CorrelationKey = %q, want %q", fired[0].CorrelationKey, want)
	}

	// Both schedules advance, the skipped one included.
	for _, rec := range []*domain.RecurringReminder{first, second} {
		got, err := recurring.GetByID(ctx, rec.ID, rec.OwnerID)
		if err != nil {
			t.Fatalf("GetByID(%s): %v", rec.Name, err)
		}
		if !got.NextRunAt.Equal(next) {
			t.Errorf("%s NextRunAt = %v, want %v", rec.Name, got.NextRunAt, next)
		}
	}
}

package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
)

type fakeReminderRepo struct {
	created  []*domain.Reminder
	createFn func(ctx context.Context, r *domain.Reminder) (*domain.Reminder, error)
	cancelFn func(ctx context.Context, id, ownerID string) (bool, error)
	getFn    func(ctx context.Context, id, ownerID string) (*domain.Reminder, error)
}

func (f *fakeReminderRepo) Create(ctx context.Context, r *domain.Reminder) (*domain.Reminder, error) {
	f.created = append(f.created, r)
	if f.createFn != nil {
		return f.createFn(ctx, r)
	}
	return r, nil
}
func (f *fakeReminderRepo) ExistsByCorrelationKey(context.Context, string, string) (bool, error) {
	return false, nil
}
func (f *fakeReminderRepo) GetByID(ctx context.Context, id, ownerID string) (*domain.Reminder, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id, ownerID)
	}
	return nil, domain.ErrReminderNotFound
}
func (f *fakeReminderRepo) ListByOwner(context.Context, string) ([]*domain.Reminder, error) {
	return nil, nil
}
func (f *fakeReminderRepo) Cancel(ctx context.Context, id, ownerID string) (bool, error) {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, id, ownerID)
	}
	return false, nil
}
func (f *fakeReminderRepo) Stats(context.Context) (domain.Stats, error) {
	return domain.Stats{Waiting: 1, Delayed: 2, Completed: 3}, nil
}
func (f *fakeReminderRepo) Claim(context.Context, string, int) ([]*domain.Reminder, error) {
	return nil, nil
}
func (f *fakeReminderRepo) UpdateHeartbeat(context.Context, string) error { return nil }
func (f *fakeReminderRepo) Complete(context.Context, string, *string) error {
	return nil
}
func (f *fakeReminderRepo) FailTerminal(context.Context, string, string) error { return nil }
func (f *fakeReminderRepo) RetryAsNew(context.Context, *domain.Reminder, string, time.Time) (*domain.Reminder, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeReminderRepo) RescheduleStale(context.Context, time.Time, int) (int, error) {
	return 0, nil
}
func (f *fakeReminderRepo) FailStale(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

type fakeAttemptRepo struct {
	attempts []*domain.Attempt
}

func (f *fakeAttemptRepo) CreateAttempt(_ context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	return a, nil
}
func (f *fakeAttemptRepo) CompleteAttempt(context.Context, string, *string, *string, int64) error {
	return nil
}
func (f *fakeAttemptRepo) ListByReminderID(context.Context, string) ([]*domain.Attempt, error) {
	return f.attempts, nil
}

// fixedNow is a Monday morning, far enough from midnight that clock rollover
// does not interfere with the relative cases.
var fixedNow = time.Date(2026, time.June, 15, 10, 30, 0, 0, time.UTC)

func newTestUsecase(repo *fakeReminderRepo, attempts *fakeAttemptRepo) *ReminderUsecase {
	u := NewReminderUsecase(repo, attempts, 30)
	u.now = func() time.Time { return fixedNow }
	return u
}

func TestCreateReminder(t *testing.T) {
	repo := &fakeReminderRepo{}
	u := newTestUsecase(repo, &fakeAttemptRepo{})

	out, err := u.Create(context.Background(), CreateReminderInput{
		OwnerID: "owner-1",
		When:    "45m",
		Message: "call mom",
		Target:  "+15550001111",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if out.Delay != 45*time.Minute {
		t.Errorf("Delay = %v, want 45m", out.Delay)
	}
	rem := out.Reminder
	if rem.Status != domain.StatusDelayed {
		t.Errorf("Status = %s, want delayed", rem.Status)
	}
	if !rem.DueAt.Equal(fixedNow.Add(45 * time.Minute)) {
		t.Errorf("DueAt = %v, want %v", rem.DueAt, fixedNow.Add(45*time.Minute))
	}
	if rem.AttemptsRemaining != 1 {
		t.Errorf("AttemptsRemaining = %d, want 1", rem.AttemptsRemaining)
	}
	if rem.CorrelationKey == "" {
		t.Error("correlation key was not generated")
	}
	if !strings.HasPrefix(rem.ID, rem.CorrelationKey+"-") {
		t.Errorf("ID %q does not embed the correlation key", rem.ID)
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d reminders, want 1", len(repo.created))
	}
}

func TestCreateReminder_KeepsCallerCorrelationKey(t *testing.T) {
	u := newTestUsecase(&fakeReminderRepo{}, &fakeAttemptRepo{})

	out, err := u.Create(context.Background(), CreateReminderInput{
		OwnerID:        "owner-1",
		When:           "2h",
		Message:        "standup",
		Target:         "+15550001111",
		CorrelationKey: "standup-monday",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.Reminder.CorrelationKey != "standup-monday" {
		t.Errorf("CorrelationKey = %q, want standup-monday", out.Reminder.CorrelationKey)
	}
}

func TestCreateReminder_RejectsUnparseableExpression(t *testing.T) {
	repo := &fakeReminderRepo{}
	u := newTestUsecase(repo, &fakeAttemptRepo{})

	_, err := u.Create(context.Background(), CreateReminderInput{
		OwnerID: "owner-1",
		When:    "whenever",
		Message: "x",
		Target:  "+15550001111",
	})

	var invalid *InvalidWhenError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want InvalidWhenError", err)
	}
	if !strings.Contains(invalid.Reason, "unrecognized time format") {
		t.Errorf("Reason = %q, want the unrecognized-format message", invalid.Reason)
	}
	if len(repo.created) != 0 {
		t.Error("reminder was stored despite a parse failure")
	}
}

func TestCreateReminder_RejectsNonPositiveDelay(t *testing.T) {
	u := newTestUsecase(&fakeReminderRepo{}, &fakeAttemptRepo{})

	_, err := u.Create(context.Background(), CreateReminderInput{
		OwnerID: "owner-1",
		When:    "0m",
		Message: "x",
		Target:  "+15550001111",
	})

	var invalid *InvalidWhenError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want InvalidWhenError", err)
	}
	if !strings.Contains(invalid.Reason, "greater than 0") {
		t.Errorf("Reason = %q, want the non-positive message", invalid.Reason)
	}
}

func TestCreateReminder_RejectsDelayOverPolicy(t *testing.T) {
	u := newTestUsecase(&fakeReminderRepo{}, &fakeAttemptRepo{})

	_, err := u.Create(context.Background(), CreateReminderInput{
		OwnerID: "owner-1",
		When:    "31d",
		Message: "x",
		Target:  "+15550001111",
	})

	var invalid *InvalidWhenError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want InvalidWhenError", err)
	}
	if !strings.Contains(invalid.Reason, "cannot exceed 30 days") {
		t.Errorf("Reason = %q, want the max-delay message", invalid.Reason)
	}
}

func TestCreateReminder_DuplicateCorrelationKey(t *testing.T) {
	repo := &fakeReminderRepo{
		createFn: func(_ context.Context, _ *domain.Reminder) (*domain.Reminder, error) {
			return nil, domain.ErrDuplicateReminder
		},
	}
	u := newTestUsecase(repo, &fakeAttemptRepo{})

	_, err := u.Create(context.Background(), CreateReminderInput{
		OwnerID:        "owner-1",
		When:           "10m",
		Message:        "x",
		Target:         "+15550001111",
		CorrelationKey: "dup",
	})
	if !errors.Is(err, domain.ErrDuplicateReminder) {
		t.Fatalf("error = %v, want ErrDuplicateReminder", err)
	}
}

func TestCancel(t *testing.T) {
	t.Run("pending reminder is canceled", func(t *testing.T) {
		repo := &fakeReminderRepo{
			cancelFn: func(_ context.Context, id, ownerID string) (bool, error) {
				return id == "rem-1" && ownerID == "owner-1", nil
			},
		}
		u := newTestUsecase(repo, &fakeAttemptRepo{})

		ok, err := u.Cancel(context.Background(), "rem-1", "owner-1")
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if !ok {
			t.Error("Cancel = false, want true")
		}
	})

	t.Run("claimed reminder is not canceled", func(t *testing.T) {
		u := newTestUsecase(&fakeReminderRepo{}, &fakeAttemptRepo{})

		ok, err := u.Cancel(context.Background(), "rem-1", "owner-1")
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if ok {
			t.Error("Cancel = true for an unknown reminder, want false")
		}
	})
}

func TestListAttempts_ChecksOwnership(t *testing.T) {
	attempts := &fakeAttemptRepo{attempts: []*domain.Attempt{{ID: "a1"}}}

	t.Run("owner sees the history", func(t *testing.T) {
		repo := &fakeReminderRepo{
			getFn: func(_ context.Context, id, ownerID string) (*domain.Reminder, error) {
				return &domain.Reminder{ID: id, OwnerID: ownerID}, nil
			},
		}
		u := newTestUsecase(repo, attempts)
		got, err := u.ListAttempts(context.Background(), "rem-1", "owner-1")
		if err != nil {
			t.Fatalf("ListAttempts: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("attempts = %d, want 1", len(got))
		}
	})

	t.Run("someone else's reminder is not found", func(t *testing.T) {
		u := newTestUsecase(&fakeReminderRepo{}, attempts)
		_, err := u.ListAttempts(context.Background(), "rem-1", "intruder")
		if !errors.Is(err, domain.ErrReminderNotFound) {
			t.Fatalf("error = %v, want ErrReminderNotFound", err)
		}
	})
}

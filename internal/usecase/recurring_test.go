package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/repository"
)

type fakeRecurringRepo struct {
	created []*domain.RecurringReminder
	byID    map[string]*domain.RecurringReminder
	paused  map[string]bool
}

func newFakeRecurringRepo() *fakeRecurringRepo {
	return &fakeRecurringRepo{
		byID:   make(map[string]*domain.RecurringReminder),
		paused: make(map[string]bool),
	}
}

func (f *fakeRecurringRepo) Create(_ context.Context, r *domain.RecurringReminder) (*domain.RecurringReminder, error) {
	for _, existing := range f.created {
		if existing.OwnerID == r.OwnerID && existing.Name == r.Name {
			return nil, domain.ErrRecurringNameConflict
		}
	}
	f.created = append(f.created, r)
	f.byID[r.ID] = r
	return r, nil
}
func (f *fakeRecurringRepo) GetByID(_ context.Context, id, ownerID string) (*domain.RecurringReminder, error) {
	r, ok := f.byID[id]
	if !ok || r.OwnerID != ownerID {
		return nil, domain.ErrRecurringNotFound
	}
	return r, nil
}
func (f *fakeRecurringRepo) List(context.Context, repository.ListRecurringInput) ([]*domain.RecurringReminder, error) {
	return f.created, nil
}
func (f *fakeRecurringRepo) SetPaused(_ context.Context, id, _ string, paused bool) error {
	f.paused[id] = paused
	if r, ok := f.byID[id]; ok {
		r.Paused = paused
	}
	return nil
}
func (f *fakeRecurringRepo) Delete(_ context.Context, id, ownerID string) error {
	r, ok := f.byID[id]
	if !ok || r.OwnerID != ownerID {
		return domain.ErrRecurringNotFound
	}
	delete(f.byID, id)
	return nil
}
func (f *fakeRecurringRepo) ClaimAndFire(context.Context, int, func(*domain.RecurringReminder) time.Time) ([]*domain.Reminder, error) {
	return nil, nil
}

func newTestRecurring(repo repository.RecurringRepository) *RecurringUsecase {
	u := NewRecurringUsecase(repo)
	u.now = func() time.Time { return fixedNow }
	return u
}

func TestCreateRecurring(t *testing.T) {
	repo := newFakeRecurringRepo()
	u := newTestRecurring(repo)

	rec, err := u.Create(context.Background(), CreateRecurringInput{
		OwnerID:  "owner-1",
		Name:     "daily standup",
		CronExpr: "0 9 * * 1-5",
		Message:  "standup in ten",
		Target:   "+15550001111",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Paused {
		t.Error("new recurring reminder starts paused")
	}
	// fixedNow is Monday 10:30 UTC, so the next weekday 09:00 slot is Tuesday.
	want := time.Date(2026, time.June, 16, 9, 0, 0, 0, time.UTC)
	if !rec.NextRunAt.Equal(want) {
		t.Errorf("NextRunAt = %v, want %v", rec.NextRunAt, want)
	}
}

func TestCreateRecurring_InvalidCron(t *testing.T) {
	u := newTestRecurring(newFakeRecurringRepo())

	_, err := u.Create(context.Background(), CreateRecurringInput{
		OwnerID:  "owner-1",
		Name:     "bad",
		CronExpr: "every tuesday sometime",
		Message:  "x",
		Target:   "+15550001111",
	})
	if !errors.Is(err, domain.ErrInvalidCronExpr) {
		t.Fatalf("error = %v, want ErrInvalidCronExpr", err)
	}
}

func TestCreateRecurring_NameConflict(t *testing.T) {
	repo := newFakeRecurringRepo()
	u := newTestRecurring(repo)

	input := CreateRecurringInput{
		OwnerID:  "owner-1",
		Name:     "daily standup",
		CronExpr: "0 9 * * *",
		Message:  "x",
		Target:   "+15550001111",
	}
	if _, err := u.Create(context.Background(), input); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := u.Create(context.Background(), input); !errors.Is(err, domain.ErrRecurringNameConflict) {
		t.Fatalf("error = %v, want ErrRecurringNameConflict", err)
	}
}

func TestPauseResume(t *testing.T) {
	repo := newFakeRecurringRepo()
	u := newTestRecurring(repo)

	rec, err := u.Create(context.Background(), CreateRecurringInput{
		OwnerID:  "owner-1",
		Name:     "water plants",
		CronExpr: "0 18 * * 0",
		Message:  "x",
		Target:   "+15550001111",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := u.Resume(context.Background(), rec.ID, "owner-1"); !errors.Is(err, domain.ErrRecurringNotPaused) {
		t.Fatalf("Resume on a running reminder: error = %v, want ErrRecurringNotPaused", err)
	}

	if err := u.Pause(context.Background(), rec.ID, "owner-1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !repo.paused[rec.ID] {
		t.Error("pause not persisted")
	}

	if err := u.Pause(context.Background(), rec.ID, "owner-1"); !errors.Is(err, domain.ErrRecurringAlreadyPaused) {
		t.Fatalf("second Pause: error = %v, want ErrRecurringAlreadyPaused", err)
	}

	if err := u.Resume(context.Background(), rec.ID, "owner-1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if repo.paused[rec.ID] {
		t.Error("resume not persisted")
	}
}

func TestPause_WrongOwner(t *testing.T) {
	repo := newFakeRecurringRepo()
	u := newTestRecurring(repo)

	rec, err := u.Create(context.Background(), CreateRecurringInput{
		OwnerID:  "owner-1",
		Name:     "n",
		CronExpr: "0 9 * * *",
		Message:  "x",
		Target:   "+15550001111",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := u.Pause(context.Background(), rec.ID, "intruder"); !errors.Is(err, domain.ErrRecurringNotFound) {
		t.Fatalf("error = %v, want ErrRecurringNotFound", err)
	}
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/repository"
)

type RecurringUsecase struct {
	repo repository.RecurringRepository
	now  func() time.Time
}

func NewRecurringUsecase(repo repository.RecurringRepository) *RecurringUsecase {
	return &RecurringUsecase{repo: repo, now: time.Now}
}

type CreateRecurringInput struct {
	OwnerID  string
	Name     string
	CronExpr string
	Message  string
	Target   string
	Voice    string
	Speed    float64
	Volume   float64
}

func (u *RecurringUsecase) Create(ctx context.Context, input CreateRecurringInput) (*domain.RecurringReminder, error) {
	sched, err := cron.ParseStandard(input.CronExpr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCronExpr, err)
	}

	now := u.now()
	rec := &domain.RecurringReminder{
		ID:       uuid.NewString(),
		OwnerID:  input.OwnerID,
		Name:     input.Name,
		CronExpr: input.CronExpr,
		Payload: domain.CallPayload{
			Message: input.Message,
			Target:  input.Target,
			Voice:   input.Voice,
			Speed:   input.Speed,
			Volume:  input.Volume,
		},
		NextRunAt: sched.Next(now),
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := u.repo.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create recurring reminder: %w", err)
	}
	return created, nil
}

func (u *RecurringUsecase) GetByID(ctx context.Context, id, ownerID string) (*domain.RecurringReminder, error) {
	rec, err := u.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get recurring reminder: %w", err)
	}
	return rec, nil
}

func (u *RecurringUsecase) List(ctx context.Context, input repository.ListRecurringInput) ([]*domain.RecurringReminder, error) {
	if input.Limit <= 0 || input.Limit > 100 {
		input.Limit = 50
	}
	recs, err := u.repo.List(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("list recurring reminders: %w", err)
	}
	return recs, nil
}

func (u *RecurringUsecase) Pause(ctx context.Context, id, ownerID string) error {
	rec, err := u.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("get recurring reminder: %w", err)
	}
	if rec.Paused {
		return domain.ErrRecurringAlreadyPaused
	}
	if err := u.repo.SetPaused(ctx, id, ownerID, true); err != nil {
		return fmt.Errorf("pause recurring reminder: %w", err)
	}
	return nil
}

func (u *RecurringUsecase) Resume(ctx context.Context, id, ownerID string) error {
	rec, err := u.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("get recurring reminder: %w", err)
	}
	if !rec.Paused {
		return domain.ErrRecurringNotPaused
	}
	if err := u.repo.SetPaused(ctx, id, ownerID, false); err != nil {
		return fmt.Errorf("resume recurring reminder: %w", err)
	}
	return nil
}

func (u *RecurringUsecase) Delete(ctx context.Context, id, ownerID string) error {
	if err := u.repo.Delete(ctx, id, ownerID); err != nil {
		return fmt.Errorf("delete recurring reminder: %w", err)
	}
	return nil
}

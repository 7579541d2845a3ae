package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/repository"
	"github.com/callwhen/callwhen/internal/timeparse"
)

// InvalidWhenError reports that the user's time expression was rejected,
// with the parser's reason verbatim so callers can show it as-is.
type InvalidWhenError struct {
	Reason string
}

func (e *InvalidWhenError) Error() string { return e.Reason }

type ReminderUsecase struct {
	repo     repository.ReminderRepository
	attempts repository.AttemptRepository

	maxDelayDays int
	now          func() time.Time
}

func NewReminderUsecase(repo repository.ReminderRepository, attempts repository.AttemptRepository, maxDelayDays int) *ReminderUsecase {
	return &ReminderUsecase{
		repo:         repo,
		attempts:     attempts,
		maxDelayDays: maxDelayDays,
		now:          time.Now,
	}
}

type CreateReminderInput struct {
	OwnerID string

	// When is the free-form time expression, e.g. "10m", "tomorrow 9am".
	When    string
	Message string
	Target  string

	Voice  string
	Speed  float64
	Volume float64

	// CorrelationKey deduplicates live reminders per owner. Generated when
	// empty.
	CorrelationKey string
	Priority       int
}

type CreateReminderOutput struct {
	Reminder *domain.Reminder
	// Delay is the parsed wait, preformatted for confirmation messages.
	Delay time.Duration
}

func (u *ReminderUsecase) Create(ctx context.Context, input CreateReminderInput) (*CreateReminderOutput, error) {
	now := u.now()

	result := timeparse.Parse(input.When, now)
	if !result.Valid {
		return nil, &InvalidWhenError{Reason: result.Reason}
	}
	if err := timeparse.ValidateDelay(result.Delay, u.maxDelayDays); err != nil {
		return nil, &InvalidWhenError{Reason: err.Error()}
	}

	key := input.CorrelationKey
	if key == "" {
		key = uuid.NewString()
	}

	reminder := &domain.Reminder{
		ID:             domain.NewReminderID(key, now),
		OwnerID:        input.OwnerID,
		CorrelationKey: key,
		Payload: domain.CallPayload{
			Message: input.Message,
			Target:  input.Target,
			Voice:   input.Voice,
			Speed:   input.Speed,
			Volume:  input.Volume,
		},
		Status:            domain.StatusDelayed,
		DueAt:             result.At,
		Priority:          input.Priority,
		CreatedAt:         now,
		AttemptsRemaining: 1,
	}

	created, err := u.repo.Create(ctx, reminder)
	if err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}

	return &CreateReminderOutput{Reminder: created, Delay: result.Delay}, nil
}

func (u *ReminderUsecase) GetByID(ctx context.Context, id, ownerID string) (*domain.Reminder, error) {
	reminder, err := u.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return reminder, nil
}

func (u *ReminderUsecase) List(ctx context.Context, ownerID string) ([]*domain.Reminder, error) {
	reminders, err := u.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

// Cancel removes a reminder that has not started executing. It returns false
// when the reminder is already active, finished, or unknown.
func (u *ReminderUsecase) Cancel(ctx context.Context, id, ownerID string) (bool, error) {
	canceled, err := u.repo.Cancel(ctx, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("cancel reminder: %w", err)
	}
	return canceled, nil
}

func (u *ReminderUsecase) Stats(ctx context.Context) (domain.Stats, error) {
	stats, err := u.repo.Stats(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("reminder stats: %w", err)
	}
	return stats, nil
}

// ListAttempts returns the execution history of one reminder, oldest first.
// Ownership is checked before touching the attempts table.
func (u *ReminderUsecase) ListAttempts(ctx context.Context, reminderID, ownerID string) ([]*domain.Attempt, error) {
	if _, err := u.repo.GetByID(ctx, reminderID, ownerID); err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	attempts, err := u.attempts.ListByReminderID(ctx, reminderID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

package repository

import (
	"context"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
)

type ListRecurringInput struct {
	OwnerID    string
	CursorTime *time.Time // cursor on (created_at DESC, id DESC); nil = first page
	CursorID   string
	Limit      int
}

type RecurringRepository interface {
	Create(ctx context.Context, r *domain.RecurringReminder) (*domain.RecurringReminder, error)
	GetByID(ctx context.Context, id, ownerID string) (*domain.RecurringReminder, error)
	List(ctx context.Context, input ListRecurringInput) ([]*domain.RecurringReminder, error)
	SetPaused(ctx context.Context, id, ownerID string, paused bool) error
	Delete(ctx context.Context, id, ownerID string) error

	// ClaimAndFire atomically claims due recurring reminders, inserts a
	// delayed reminder for each, and advances next_run_at in one transaction;
	// no partial state on crash.
	ClaimAndFire(ctx context.Context, limit int, computeNext func(*domain.RecurringReminder) time.Time) ([]*domain.Reminder, error)
}

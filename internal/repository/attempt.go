package repository

import (
	"context"

	"github.com/callwhen/callwhen/internal/domain"
)

type AttemptRepository interface {
	// CreateAttempt opens an attempt record at the moment execution starts.
	// Returns the persisted attempt (with its store-generated ID) so the
	// caller can close it with CompleteAttempt once the call finishes.
	CreateAttempt(ctx context.Context, attempt *domain.Attempt) (*domain.Attempt, error)

	// CompleteAttempt closes an open attempt record with the execution
	// outcome. callRef is nil when the gateway never answered; errMsg is nil
	// on success.
	CompleteAttempt(ctx context.Context, id string, callRef *string, errMsg *string, durationMS int64) error

	// ListByReminderID returns all attempts for a reminder, started_at ASC.
	// Ownership is assumed to have been verified by the caller.
	ListByReminderID(ctx context.Context, reminderID string) ([]*domain.Attempt, error)
}

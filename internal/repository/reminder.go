package repository

import (
	"context"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
)

// ReminderRepository is the single shared mutable resource in the system: the
// durable queue of pending call reminders. Usecases and the scheduler worker
// depend on this interface, not a concrete store, so the postgres and sqlite
// implementations are interchangeable and tests can pass fakes.
//
// Every method distinguishes "row does not exist" (sentinel domain error or
// false) from "store unreachable" (any other error).
type ReminderRepository interface {
	// Create persists a new delayed reminder and returns it with store
	// timestamps filled in. A duplicate correlation key for the same owner on
	// a non-terminal row returns domain.ErrDuplicateReminder.
	Create(ctx context.Context, r *domain.Reminder) (*domain.Reminder, error)

	// ExistsByCorrelationKey reports whether any reminder, terminal rows
	// included, was ever created for this owner and key. The unique index only
	// guards live rows, so sources that re-scan a window use this to keep a
	// completed occurrence from firing again.
	ExistsByCorrelationKey(ctx context.Context, ownerID, correlationKey string) (bool, error)

	GetByID(ctx context.Context, id, ownerID string) (*domain.Reminder, error)

	// ListByOwner returns the owner's non-terminal reminders, due_at ascending.
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Reminder, error)

	// Cancel removes a reminder that has not been claimed yet. It returns
	// false (with nil error) when the reminder is active, terminal, or
	// unknown: a cancel racing a claim loses cleanly, it never resurrects or
	// partially executes the row.
	Cancel(ctx context.Context, id, ownerID string) (bool, error)

	// Stats counts reminders per status in one aggregate pass, splitting due
	// unclaimed rows out as waiting.
	Stats(ctx context.Context) (domain.Stats, error)

	// Claim atomically flips due delayed rows to active for this worker,
	// preferring higher priority and earlier due times. No reminder is ever
	// claimed by two workers.
	Claim(ctx context.Context, workerID string, limit int) ([]*domain.Reminder, error)

	UpdateHeartbeat(ctx context.Context, id string) error

	// Complete marks an active reminder done and records the gateway call
	// reference, when one was returned.
	Complete(ctx context.Context, id string, callRef *string) error

	// FailTerminal ends the reminder's lifecycle with no further retries.
	FailTerminal(ctx context.Context, id string, lastError string) error

	// RetryAsNew terminally marks the original row and inserts its
	// replacement, a fresh delayed reminder with the retry budget
	// decremented and priority elevated, in one atomic step. Retries are
	// ordinary reminders, not a separate subsystem.
	RetryAsNew(ctx context.Context, orig *domain.Reminder, lastError string, dueAt time.Time) (*domain.Reminder, error)

	// Crash recovery: active rows whose heartbeat stopped are returned to the
	// queue while budget remains, failed otherwise. Used only by the reaper.
	RescheduleStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
	FailStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
}

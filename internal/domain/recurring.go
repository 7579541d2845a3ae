package domain

import (
	"errors"
	"time"
)

var (
	ErrRecurringNotFound      = errors.New("recurring reminder not found")
	ErrInvalidCronExpr        = errors.New("invalid cron expression")
	ErrRecurringAlreadyPaused = errors.New("recurring reminder is already paused")
	ErrRecurringNotPaused     = errors.New("recurring reminder is not paused")
	ErrRecurringNameConflict  = errors.New("recurring reminder with this name already exists")
)

// RecurringReminder fires a reminder on a cron schedule. Each fire becomes an
// ordinary delayed reminder owned by the store.
type RecurringReminder struct {
	ID        string
	OwnerID   string
	Name      string
	CronExpr  string
	Payload   CallPayload
	Paused    bool
	NextRunAt time.Time
	LastRunAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

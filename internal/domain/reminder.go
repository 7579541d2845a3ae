package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrReminderNotFound  = errors.New("reminder not found")
	ErrDuplicateReminder = errors.New("reminder with this correlation key already exists")
)

type Status string

const (
	// StatusWaiting is never stored: a delayed reminder whose due time has
	// passed but which no worker has claimed yet is reported as waiting.
	StatusWaiting   Status = "waiting"
	StatusDelayed   Status = "delayed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// CallPayload is what the notifier needs to place the call. Stored as JSONB.
type CallPayload struct {
	Message string  `json:"message"`
	Target  string  `json:"target"`
	Voice   string  `json:"voice,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
	Volume  float64 `json:"volume,omitempty"`
}

type Reminder struct {
	ID             string
	OwnerID        string
	CorrelationKey string
	Payload        CallPayload

	Status    Status
	DueAt     time.Time
	Priority  int
	CreatedAt time.Time

	// AttemptsRemaining is the retry budget left after the next execution.
	// A fresh reminder carries 1: one automatic retry, never more.
	AttemptsRemaining int

	ClaimedAt   *time.Time
	ClaimedBy   *string // worker ID
	HeartbeatAt *time.Time
	CompletedAt *time.Time
	CallRef     *string // gateway correlation id recorded on success
	LastError   *string
	RetryOf     *string // id of the reminder this one replaces
}

// NewReminderID builds a collision-resistant id from the caller's correlation
// key, a clock component, and a short random suffix for concurrent inserts
// within the same millisecond.
func NewReminderID(correlationKey string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", correlationKey, now.UnixMilli(), uuid.NewString()[:8])
}

// EffectiveStatus folds the derived waiting view over the stored status.
func (r *Reminder) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusDelayed && !r.DueAt.After(now) {
		return StatusWaiting
	}
	return r.Status
}

// Attempt records one execution of a reminder. Opened before the notifier is
// invoked so a worker crash leaves a visible incomplete row.
type Attempt struct {
	ID          string
	ReminderID  string
	AttemptNum  int
	WorkerID    string
	StartedAt   time.Time
	CompletedAt *time.Time
	CallRef     *string
	Error       *string
	DurationMS  *int64
}

// Stats is a consistent point-in-time count of reminders per status,
// produced by a single aggregate pass over the store.
type Stats struct {
	Waiting   int `json:"waiting"`
	Delayed   int `json:"delayed"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

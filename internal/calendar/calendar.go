// Package calendar watches an external event feed and schedules an advance
// voice reminder for each upcoming event. Scheduled reminders are ordinary
// delayed rows in the store; the correlation key ties each one to a specific
// event occurrence, so repeat polls of the same window are harmless.
package calendar

import (
	"context"
	"time"
)

// Event is one upcoming calendar entry.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	Location  string    `json:"location,omitempty"`
	Attendees []string  `json:"attendees,omitempty"`
}

// EventSource lists events starting inside a time window.
type EventSource interface {
	Upcoming(ctx context.Context, from, until time.Time) ([]Event, error)
}

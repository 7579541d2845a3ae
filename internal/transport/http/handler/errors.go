package handler

const (
	errInternalServer        = "Internal server error"
	errReminderNotFound      = "Reminder not found"
	errReminderNotCancelable = "Reminder already started or finished"
	errDuplicateReminder     = "Reminder with this correlation key already exists"
	errInvalidCronExpr       = "Invalid cron expression"
	errRecurringNotFound     = "Recurring reminder not found"
	errRecurringNameConflict = "Recurring reminder with this name already exists"
	errAlreadyPaused         = "Recurring reminder is already paused"
	errNotPaused             = "Recurring reminder is not paused"
)

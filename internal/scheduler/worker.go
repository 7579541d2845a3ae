package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/metrics"
	"github.com/callwhen/callwhen/internal/repository"
)

// Worker drains due reminders. A channel semaphore bounds how many are active
// at once in this process; when a burst of simultaneously due reminders
// exceeds the limit, the excess stays delayed in the store and is picked up
// on a later poll.
type Worker struct {
	id           string
	repo         repository.ReminderRepository
	attempts     repository.AttemptRepository
	executor     *Executor
	logger       *slog.Logger
	pollInterval time.Duration
	concurrency  int
	sem          chan struct{}
}

func NewWorker(
	repo repository.ReminderRepository,
	attempts repository.AttemptRepository,
	executor *Executor,
	logger *slog.Logger,
	pollInterval time.Duration,
	concurrency int,
) *Worker {
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	return &Worker{
		id:           id,
		repo:         repo,
		attempts:     attempts,
		executor:     executor,
		logger:       logger.With("worker_id", id),
		pollInterval: pollInterval,
		concurrency:  concurrency,
		sem:          make(chan struct{}, concurrency),
	}
}

func (w *Worker) Start(ctx context.Context) {
	metrics.WorkerStartTime.SetToCurrentTime()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker started", "concurrency", w.concurrency)

	for {
		select {
		case <-ctx.Done():
			metrics.WorkerShutdownsTotal.Inc()
			w.logger.Info("worker shut down")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	available := cap(w.sem) - len(w.sem)
	if available == 0 {
		return
	}

	reminders, err := w.repo.Claim(ctx, w.id, available)
	if err != nil {
		w.logger.Error("claim reminders", "error", err)
		return
	}
	if len(reminders) == 0 {
		return
	}

	w.logger.Info("claimed reminders", "count", len(reminders), "slots_used", len(w.sem)+len(reminders), "slots_total", cap(w.sem))

	for _, rem := range reminders {
		w.sem <- struct{}{}
		go func(r *domain.Reminder) {
			metrics.RemindersInFlight.Inc()
			defer metrics.RemindersInFlight.Dec()
			defer func() { <-w.sem }()
			w.runReminder(ctx, r)
		}(rem)
	}
}

func (w *Worker) runReminder(ctx context.Context, rem *domain.Reminder) {
	metrics.ReminderPickupLatency.Observe(time.Since(rem.DueAt).Seconds())

	startedAt := time.Now()

	// Open the attempt record before invoking the gateway so a worker crash
	// leaves a visible incomplete entry (completed_at = NULL) in the history.
	attempt, err := w.attempts.CreateAttempt(ctx, &domain.Attempt{
		ReminderID: rem.ID,
		AttemptNum: attemptNum(rem),
		WorkerID:   w.id,
		StartedAt:  startedAt,
	})
	if err != nil {
		// If the store is unhealthy enough to reject this write, the outcome
		// writes below will fail too. Return now: the reminder stays active,
		// the heartbeat stops, and the reaper reschedules it after the cutoff.
		w.logger.Error("create attempt record, aborting run, reaper will reschedule", "reminder_id", rem.ID, "error", err)
		return
	}

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go w.heartbeat(heartbeatCtx, rem.ID)

	w.logger.Info("placing call", "reminder_id", rem.ID, "target", rem.Payload.Target)

	result := w.executor.Run(ctx, rem)
	durationMS := time.Since(startedAt).Milliseconds()

	if result.Err == nil {
		metrics.CallDuration.WithLabelValues("success").Observe(result.Duration.Seconds())
		metrics.RemindersFinishedTotal.WithLabelValues("success").Inc()

		var ref *string
		if result.CallRef != "" {
			ref = &result.CallRef
		}
		w.closeAttempt(ctx, attempt, ref, nil, durationMS)
		if err := w.repo.Complete(ctx, rem.ID, ref); err != nil {
			w.logger.Error("mark reminder complete", "reminder_id", rem.ID, "error", err)
		}
		w.logger.Info("reminder delivered", "reminder_id", rem.ID, "call_ref", result.CallRef, "duration", result.Duration)
		return
	}

	errMsg := result.Err.Error()
	metrics.CallDuration.WithLabelValues("failure").Observe(result.Duration.Seconds())
	w.closeAttempt(ctx, attempt, nil, &errMsg, durationMS)

	if IsRetryable(result.Err) && rem.AttemptsRemaining > 0 {
		backoff := RetryBackoff(rem.DueAt.Sub(rem.CreatedAt))
		retryAt := time.Now().Add(backoff)

		replacement, err := w.repo.RetryAsNew(ctx, rem, errMsg, retryAt)
		if err != nil {
			w.logger.Error("re-enqueue retry", "reminder_id", rem.ID, "error", err)
			return
		}
		metrics.RemindersFinishedTotal.WithLabelValues("retry").Inc()
		w.logger.Warn("call failed, retry scheduled",
			"reminder_id", rem.ID,
			"retry_id", replacement.ID,
			"error", errMsg,
			"retry_at", retryAt,
		)
		return
	}

	if err := w.repo.FailTerminal(ctx, rem.ID, errMsg); err != nil {
		w.logger.Error("mark reminder failed", "reminder_id", rem.ID, "error", err)
	}
	metrics.RemindersFinishedTotal.WithLabelValues("failed").Inc()
	w.logger.Warn("reminder permanently failed", "reminder_id", rem.ID, "error", errMsg)
}

// attemptNum is 1 for a first-run reminder and 2 for its retry replacement.
func attemptNum(rem *domain.Reminder) int {
	if rem.RetryOf != nil {
		return 2
	}
	return 1
}

// closeAttempt writes the execution outcome to the attempt record.
func (w *Worker) closeAttempt(ctx context.Context, attempt *domain.Attempt, callRef *string, errMsg *string, durationMS int64) {
	if err := w.attempts.CompleteAttempt(ctx, attempt.ID, callRef, errMsg, durationMS); err != nil {
		w.logger.Error("complete attempt record", "reminder_id", attempt.ReminderID, "error", err)
	}
}

func (w *Worker) heartbeat(ctx context.Context, reminderID string) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.repo.UpdateHeartbeat(ctx, reminderID); err != nil {
				w.logger.Warn("heartbeat failed", "reminder_id", reminderID, "error", err)
			}
		}
	}
}

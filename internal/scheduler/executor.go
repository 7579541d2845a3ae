package scheduler

import (
	"context"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/notify"
)

// Executor performs one notification call with a bounded deadline. It does
// not touch the store; the worker owns state transitions.
type Executor struct {
	notifier    notify.Notifier
	callTimeout time.Duration
}

func NewExecutor(notifier notify.Notifier, callTimeout time.Duration) *Executor {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Executor{notifier: notifier, callTimeout: callTimeout}
}

type ExecutionResult struct {
	CallRef  string
	Err      error
	Duration time.Duration
}

func (e *Executor) Run(ctx context.Context, rem *domain.Reminder) ExecutionResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	ref, err := e.notifier.Invoke(ctx, rem.Payload)
	return ExecutionResult{CallRef: ref, Err: err, Duration: time.Since(start)}
}

// Package notify abstracts the external notification action. The scheduler
// treats it as an opaque, possibly-slow, possibly-failing remote call: the
// only contract is a correlation reference on success and an error whose text
// drives retry classification.
package notify

import (
	"context"
	"log/slog"

	"github.com/callwhen/callwhen/internal/domain"
)

type Notifier interface {
	// Invoke delivers the payload. The returned reference identifies the
	// delivery on the remote side (call id, message id) and may be empty.
	Invoke(ctx context.Context, p domain.CallPayload) (ref string, err error)
}

// LogNotifier logs instead of calling anyone, used in ENV=local.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) Invoke(_ context.Context, p domain.CallPayload) (string, error) {
	n.logger.Info("voice call (local dev)", "target", p.Target, "message", p.Message)
	return "local-dev", nil
}

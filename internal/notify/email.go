package notify

import (
	"context"
	"fmt"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/resend/resend-go/v2"
)

// EmailNotifier delivers the reminder as an email via Resend. Used when a
// target is an address rather than a phone number, and as the channel for
// owners who opted out of calls.
type EmailNotifier struct {
	client *resend.Client
	from   string
}

func NewEmailNotifier(apiKey, from string) *EmailNotifier {
	return &EmailNotifier{client: resend.NewClient(apiKey), from: from}
}

func (n *EmailNotifier) Invoke(ctx context.Context, p domain.CallPayload) (string, error) {
	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{p.Target},
		Subject: "Reminder",
		Text:    p.Message,
	}
	sent, err := n.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("send reminder email: %w", err)
	}
	return sent.Id, nil
}

// ForTarget picks the email channel for address-shaped targets and the voice
// channel otherwise.
type ChannelNotifier struct {
	Voice Notifier
	Email Notifier
}

func (n *ChannelNotifier) Invoke(ctx context.Context, p domain.CallPayload) (string, error) {
	if isEmailAddress(p.Target) && n.Email != nil {
		return n.Email.Invoke(ctx, p)
	}
	return n.Voice.Invoke(ctx, p)
}

func isEmailAddress(s string) bool {
	at := -1
	for i, c := range s {
		if c == '@' {
			if at != -1 {
				return false
			}
			at = i
		}
	}
	return at > 0 && at < len(s)-1
}

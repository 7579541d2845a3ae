// Package telegram exposes the reminder pipeline to a Telegram bot. Each
// sender is its own owner, so chats never see each other's reminders.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/timeparse"
	"github.com/callwhen/callwhen/internal/usecase"
)

const usageRemind = `Usage: /remind <when> | <message> [| <target>]
Examples:
  /remind 10m | take the pizza out
  /remind tomorrow 9am | standup | +15550001111`

type Bot struct {
	bot       *tele.Bot
	reminders *usecase.ReminderUsecase
	logger    *slog.Logger
}

func NewBot(token string, reminders *usecase.ReminderUsecase, logger *slog.Logger) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:       b,
		reminders: reminders,
		logger:    logger.With("component", "telegram"),
	}
	bot.register()
	return bot, nil
}

func (b *Bot) register() {
	b.bot.Handle("/remind", b.handleRemind)
	b.bot.Handle("/list", b.handleList)
	b.bot.Handle("/cancel", b.handleCancel)
	b.bot.Handle("/stats", b.handleStats)
}

// Start blocks until ctx is canceled.
func (b *Bot) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.logger.Info("telegram bot started")
	b.bot.Start()
	b.logger.Info("telegram bot shut down")
}

// ownerID namespaces Telegram senders away from API users.
func ownerID(c tele.Context) string {
	return fmt.Sprintf("tg:%d", c.Sender().ID)
}

func (b *Bot) handleRemind(c tele.Context) error {
	parts := strings.Split(c.Message().Payload, "|")
	if len(parts) < 2 {
		return c.Send(usageRemind)
	}

	when := strings.TrimSpace(parts[0])
	message := strings.TrimSpace(parts[1])
	target := fmt.Sprintf("tg:%d", c.Chat().ID)
	if len(parts) >= 3 && strings.TrimSpace(parts[2]) != "" {
		target = strings.TrimSpace(parts[2])
	}
	if when == "" || message == "" {
		return c.Send(usageRemind)
	}

	out, err := b.reminders.Create(context.Background(), usecase.CreateReminderInput{
		OwnerID: ownerID(c),
		When:    when,
		Message: message,
		Target:  target,
	})
	if err != nil {
		var invalid *usecase.InvalidWhenError
		switch {
		case errors.As(err, &invalid):
			return c.Send(invalid.Reason)
		case errors.Is(err, domain.ErrDuplicateReminder):
			return c.Send("You already have a live reminder with that key.")
		default:
			b.logger.Error("create reminder", "error", err)
			return c.Send("Something went wrong, try again.")
		}
	}

	return c.Send(fmt.Sprintf("Will call in %s (%s).\nID: %s",
		timeparse.FormatDelay(out.Delay),
		out.Reminder.DueAt.Format("Jan 2 15:04 MST"),
		out.Reminder.ID,
	))
}

func (b *Bot) handleList(c tele.Context) error {
	reminders, err := b.reminders.List(context.Background(), ownerID(c))
	if err != nil {
		b.logger.Error("list reminders", "error", err)
		return c.Send("Something went wrong, try again.")
	}
	if len(reminders) == 0 {
		return c.Send("No pending reminders.")
	}

	now := time.Now()
	var sb strings.Builder
	for _, r := range reminders {
		fmt.Fprintf(&sb, "%s · %s · in %s\n  %s\n",
			r.ID,
			r.EffectiveStatus(now),
			timeparse.FormatDelay(time.Until(r.DueAt)),
			r.Payload.Message,
		)
	}
	return c.Send(sb.String())
}

func (b *Bot) handleCancel(c tele.Context) error {
	id := strings.TrimSpace(c.Message().Payload)
	if id == "" {
		return c.Send("Usage: /cancel <reminder id>")
	}

	canceled, err := b.reminders.Cancel(context.Background(), id, ownerID(c))
	if err != nil {
		b.logger.Error("cancel reminder", "reminder_id", id, "error", err)
		return c.Send("Something went wrong, try again.")
	}
	if !canceled {
		return c.Send("That reminder already started or doesn't exist.")
	}
	return c.Send("Canceled.")
}

func (b *Bot) handleStats(c tele.Context) error {
	stats, err := b.reminders.Stats(context.Background())
	if err != nil {
		b.logger.Error("reminder stats", "error", err)
		return c.Send("Something went wrong, try again.")
	}
	return c.Send(fmt.Sprintf(
		"waiting: %d\ndelayed: %d\nactive: %d\ncompleted: %d\nfailed: %d",
		stats.Waiting, stats.Delayed, stats.Active, stats.Completed, stats.Failed,
	))
}

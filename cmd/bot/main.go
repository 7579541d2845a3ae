package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/callwhen/callwhen/config"
	"github.com/callwhen/callwhen/internal/infrastructure/postgres"
	"github.com/callwhen/callwhen/internal/infrastructure/sqlite"
	ctxlog "github.com/callwhen/callwhen/internal/log"
	"github.com/callwhen/callwhen/internal/repository"
	"github.com/callwhen/callwhen/internal/transport/telegram"
	"github.com/callwhen/callwhen/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.TelegramToken == "" {
		log.Fatal("TELEGRAM_TOKEN is not set")
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		reminderRepo repository.ReminderRepository
		attemptRepo  repository.AttemptRepository
		closeStore   func()
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			stop()
			log.Fatalf("db: %v", err)
		}
		reminderRepo = postgres.NewReminderRepository(pool)
		attemptRepo = postgres.NewAttemptRepository(pool)
		closeStore = pool.Close
	} else {
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			stop()
			log.Fatalf("db: %v", err)
		}
		reminderRepo = sqlite.NewReminderRepository(db)
		attemptRepo = sqlite.NewAttemptRepository(db)
		closeStore = func() { _ = db.Close() }
	}
	defer closeStore()

	reminderUsecase := usecase.NewReminderUsecase(reminderRepo, attemptRepo, cfg.MaxDelayDays)

	bot, err := telegram.NewBot(cfg.TelegramToken, reminderUsecase, logger)
	if err != nil {
		log.Fatalf("telegram: %v", err)
	}

	bot.Start(ctx)
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}

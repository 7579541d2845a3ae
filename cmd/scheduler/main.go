package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/callwhen/callwhen/config"
	"github.com/callwhen/callwhen/internal/calendar"
	"github.com/callwhen/callwhen/internal/health"
	"github.com/callwhen/callwhen/internal/infrastructure/postgres"
	"github.com/callwhen/callwhen/internal/infrastructure/sqlite"
	ctxlog "github.com/callwhen/callwhen/internal/log"
	"github.com/callwhen/callwhen/internal/metrics"
	"github.com/callwhen/callwhen/internal/notify"
	"github.com/callwhen/callwhen/internal/repository"
	"github.com/callwhen/callwhen/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var (
		reminderRepo  repository.ReminderRepository
		attemptRepo   repository.AttemptRepository
		recurringRepo repository.RecurringRepository
		pinger        health.Pinger
		storeName     string
		closeStore    func()
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			stop()
			log.Fatalf("db: %v", err)
		}
		reminderRepo = postgres.NewReminderRepository(pool)
		attemptRepo = postgres.NewAttemptRepository(pool)
		recurringRepo = postgres.NewRecurringRepository(pool, logger)
		pinger = pool
		storeName = "postgres"
		closeStore = pool.Close
	} else {
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			stop()
			log.Fatalf("db: %v", err)
		}
		reminderRepo = sqlite.NewReminderRepository(db)
		attemptRepo = sqlite.NewAttemptRepository(db)
		recurringRepo = sqlite.NewRecurringRepository(db, logger)
		pinger = health.PingerFunc(db.PingContext)
		storeName = "sqlite"
		closeStore = func() { _ = db.Close() }
	}
	defer closeStore()

	logger.Info("store connected", "store", storeName)

	metrics.Register()
	checker := health.NewChecker(storeName, pinger, logger, prometheus.DefaultRegisterer)

	executor := scheduler.NewExecutor(newNotifier(cfg, logger), time.Duration(cfg.CallTimeoutSec)*time.Second)

	worker := scheduler.NewWorker(
		reminderRepo,
		attemptRepo,
		executor,
		logger,
		time.Duration(cfg.PollIntervalSec)*time.Second,
		cfg.WorkerCount,
	)
	go worker.Start(ctx)

	// heartbeat fires every 10s, so a 30s timeout means 3 missed beats
	// before a reminder counts as stale
	reaper := scheduler.NewReaper(reminderRepo, logger, 30*time.Second, 30*time.Second)
	go reaper.Start(ctx)

	dispatcher := scheduler.NewDispatcher(recurringRepo, logger, time.Duration(cfg.DispatchIntervalSec)*time.Second)
	go dispatcher.Start(ctx)

	if cfg.CalendarFeedURL != "" {
		poller := calendar.NewPoller(
			calendar.NewFeedSource(cfg.CalendarFeedURL),
			reminderRepo,
			logger,
			cfg.CalendarOwnerID,
			cfg.CalendarTarget,
			time.Minute,
			time.Duration(cfg.CalendarLeadMin)*time.Minute,
		)
		go poller.Start(ctx)
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker.ReadinessHandler())
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

// newNotifier wires the delivery channels: log-only locally, voice gateway
// otherwise, with email for address-shaped targets when resend is configured.
func newNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	if cfg.Env == "local" && cfg.VoiceAPIKey == "" {
		return notify.NewLogNotifier(logger)
	}

	voice := notify.NewVoiceNotifier(cfg.VoiceAPIURL, cfg.VoiceAPIKey, cfg.CallsPerMinute)
	if cfg.ResendAPIKey == "" {
		return voice
	}
	return &notify.ChannelNotifier{
		Voice: voice,
		Email: notify.NewEmailNotifier(cfg.ResendAPIKey, cfg.ResendFrom),
	}
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

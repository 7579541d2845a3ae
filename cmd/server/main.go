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

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/callwhen/callwhen/config"
	"github.com/callwhen/callwhen/internal/health"
	"github.com/callwhen/callwhen/internal/infrastructure/postgres"
	"github.com/callwhen/callwhen/internal/infrastructure/sqlite"
	ctxlog "github.com/callwhen/callwhen/internal/log"
	"github.com/callwhen/callwhen/internal/metrics"
	"github.com/callwhen/callwhen/internal/repository"
	httptransport "github.com/callwhen/callwhen/internal/transport/http"
	"github.com/callwhen/callwhen/internal/transport/http/handler"
	"github.com/callwhen/callwhen/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

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

	reminderUsecase := usecase.NewReminderUsecase(reminderRepo, attemptRepo, cfg.MaxDelayDays)
	reminderHandler := handler.NewReminderHandler(reminderUsecase, logger)

	recurringUsecase := usecase.NewRecurringUsecase(recurringRepo)
	recurringHandler := handler.NewRecurringHandler(recurringUsecase, logger)

	metrics.Register()
	checker := health.NewChecker(storeName, pinger, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, reminderHandler, recurringHandler, []byte(cfg.JWTSecret)),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker.ReadinessHandler())

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
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

package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/callwhen/callwhen/internal/transport/http/handler"
	"github.com/callwhen/callwhen/internal/transport/http/middleware"
)

func NewRouter(logger *slog.Logger, reminderHandler *handler.ReminderHandler, recurringHandler *handler.RecurringHandler, hmacKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(hmacKey)

	reminders := r.Group("/reminders", authMW)
	reminders.POST("", reminderHandler.Create)
	reminders.GET("", reminderHandler.List)
	reminders.GET("/:id", reminderHandler.GetByID)
	reminders.DELETE("/:id", reminderHandler.Cancel)
	reminders.GET("/:id/attempts", reminderHandler.ListAttempts)

	recurring := r.Group("/recurring", authMW)
	recurring.POST("", recurringHandler.Create)
	recurring.GET("", recurringHandler.List)
	recurring.GET("/:id", recurringHandler.GetByID)
	recurring.POST("/:id/pause", recurringHandler.Pause)
	recurring.POST("/:id/resume", recurringHandler.Resume)
	recurring.DELETE("/:id", recurringHandler.Delete)

	r.GET("/stats", authMW, reminderHandler.Stats)

	return r
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/timeparse"
	"github.com/callwhen/callwhen/internal/usecase"
)

type ReminderHandler struct {
	uc     *usecase.ReminderUsecase
	logger *slog.Logger
}

func NewReminderHandler(uc *usecase.ReminderUsecase, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{uc: uc, logger: logger.With("component", "reminder_handler")}
}

type createReminderRequest struct {
	// When is a free-form time expression: "10m", "17:30", "tomorrow 9am",
	// "06/25/2026 9:00am", a unix timestamp, "friday", "next monday".
	When    string `json:"when"    binding:"required,max=128"`
	Message string `json:"message" binding:"required,max=1024"`
	Target  string `json:"target"  binding:"required,max=256"`

	Voice  string  `json:"voice"  binding:"omitempty,max=64"`
	Speed  float64 `json:"speed"  binding:"omitempty,min=0.5,max=2"`
	Volume float64 `json:"volume" binding:"omitempty,min=0,max=1"`

	CorrelationKey string `json:"correlation_key" binding:"omitempty,max=256"`
	Priority       int    `json:"priority"        binding:"omitempty,min=0,max=100"`
}

type createReminderResponse struct {
	ID        string    `json:"id"`
	DueAt     time.Time `json:"due_at"`
	Delay     string    `json:"delay"`
	CreatedAt time.Time `json:"created_at"`
}

type reminderResponse struct {
	ID             string        `json:"id"`
	CorrelationKey string        `json:"correlation_key"`
	Message        string        `json:"message"`
	Target         string        `json:"target"`
	Status         domain.Status `json:"status"`
	DueAt          time.Time     `json:"due_at"`
	Priority       int           `json:"priority"`
	CreatedAt      time.Time     `json:"created_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	CallRef        *string       `json:"call_ref,omitempty"`
	LastError      *string       `json:"last_error,omitempty"`
	RetryOf        *string       `json:"retry_of,omitempty"`
}

func toReminderResponse(r *domain.Reminder, now time.Time) reminderResponse {
	return reminderResponse{
		ID:             r.ID,
		CorrelationKey: r.CorrelationKey,
		Message:        r.Payload.Message,
		Target:         r.Payload.Target,
		Status:         r.EffectiveStatus(now),
		DueAt:          r.DueAt,
		Priority:       r.Priority,
		CreatedAt:      r.CreatedAt,
		CompletedAt:    r.CompletedAt,
		CallRef:        r.CallRef,
		LastError:      r.LastError,
		RetryOf:        r.RetryOf,
	}
}

func (h *ReminderHandler) Create(ctx *gin.Context) {
	var req createReminderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.uc.Create(ctx.Request.Context(), usecase.CreateReminderInput{
		OwnerID:        ctx.GetString("ownerID"),
		When:           req.When,
		Message:        req.Message,
		Target:         req.Target,
		Voice:          req.Voice,
		Speed:          req.Speed,
		Volume:         req.Volume,
		CorrelationKey: req.CorrelationKey,
		Priority:       req.Priority,
	})
	if err != nil {
		var invalid *usecase.InvalidWhenError
		switch {
		case errors.As(err, &invalid):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": invalid.Reason})
		case errors.Is(err, domain.ErrDuplicateReminder):
			ctx.JSON(http.StatusConflict, gin.H{"error": errDuplicateReminder})
		default:
			h.logger.Error("create reminder", "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusCreated, createReminderResponse{
		ID:        out.Reminder.ID,
		DueAt:     out.Reminder.DueAt,
		Delay:     timeparse.FormatDelay(out.Delay),
		CreatedAt: out.Reminder.CreatedAt,
	})
}

func (h *ReminderHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	reminder, err := h.uc.GetByID(ctx.Request.Context(), id, ctx.GetString("ownerID"))
	if err != nil {
		if errors.Is(err, domain.ErrReminderNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errReminderNotFound})
			return
		}
		h.logger.Error("get reminder by id", "reminder_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, toReminderResponse(reminder, time.Now()))
}

func (h *ReminderHandler) List(ctx *gin.Context) {
	reminders, err := h.uc.List(ctx.Request.Context(), ctx.GetString("ownerID"))
	if err != nil {
		h.logger.Error("list reminders", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	now := time.Now()
	resp := make([]reminderResponse, 0, len(reminders))
	for _, r := range reminders {
		resp = append(resp, toReminderResponse(r, now))
	}
	ctx.JSON(http.StatusOK, gin.H{"reminders": resp})
}

func (h *ReminderHandler) Cancel(ctx *gin.Context) {
	id := ctx.Param("id")

	canceled, err := h.uc.Cancel(ctx.Request.Context(), id, ctx.GetString("ownerID"))
	if err != nil {
		h.logger.Error("cancel reminder", "reminder_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if !canceled {
		ctx.JSON(http.StatusConflict, gin.H{"error": errReminderNotCancelable})
		return
	}

	ctx.Status(http.StatusNoContent)
}

type attemptResponse struct {
	ID          string     `json:"id"`
	AttemptNum  int        `json:"attempt_num"`
	WorkerID    string     `json:"worker_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CallRef     *string    `json:"call_ref,omitempty"`
	Error       *string    `json:"error,omitempty"`
	DurationMS  *int64     `json:"duration_ms,omitempty"`
}

func (h *ReminderHandler) ListAttempts(ctx *gin.Context) {
	id := ctx.Param("id")

	attempts, err := h.uc.ListAttempts(ctx.Request.Context(), id, ctx.GetString("ownerID"))
	if err != nil {
		if errors.Is(err, domain.ErrReminderNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errReminderNotFound})
			return
		}
		h.logger.Error("list attempts", "reminder_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	resp := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		resp = append(resp, attemptResponse{
			ID:          a.ID,
			AttemptNum:  a.AttemptNum,
			WorkerID:    a.WorkerID,
			StartedAt:   a.StartedAt,
			CompletedAt: a.CompletedAt,
			CallRef:     a.CallRef,
			Error:       a.Error,
			DurationMS:  a.DurationMS,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"attempts": resp})
}

func (h *ReminderHandler) Stats(ctx *gin.Context) {
	stats, err := h.uc.Stats(ctx.Request.Context())
	if err != nil {
		h.logger.Error("reminder stats", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/repository"
	"github.com/callwhen/callwhen/internal/usecase"
)

type RecurringHandler struct {
	uc     *usecase.RecurringUsecase
	logger *slog.Logger
}

func NewRecurringHandler(uc *usecase.RecurringUsecase, logger *slog.Logger) *RecurringHandler {
	return &RecurringHandler{uc: uc, logger: logger.With("component", "recurring_handler")}
}

type createRecurringRequest struct {
	Name     string  `json:"name"      binding:"required,max=256"`
	CronExpr string  `json:"cron_expr" binding:"required"`
	Message  string  `json:"message"   binding:"required,max=1024"`
	Target   string  `json:"target"    binding:"required,max=256"`
	Voice    string  `json:"voice"     binding:"omitempty,max=64"`
	Speed    float64 `json:"speed"     binding:"omitempty,min=0.5,max=2"`
	Volume   float64 `json:"volume"    binding:"omitempty,min=0,max=1"`
}

type recurringResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CronExpr  string     `json:"cron_expr"`
	Message   string     `json:"message"`
	Target    string     `json:"target"`
	Paused    bool       `json:"paused"`
	NextRunAt time.Time  `json:"next_run_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toRecurringResponse(r *domain.RecurringReminder) recurringResponse {
	return recurringResponse{
		ID:        r.ID,
		Name:      r.Name,
		CronExpr:  r.CronExpr,
		Message:   r.Payload.Message,
		Target:    r.Payload.Target,
		Paused:    r.Paused,
		NextRunAt: r.NextRunAt,
		LastRunAt: r.LastRunAt,
		CreatedAt: r.CreatedAt,
	}
}

func (h *RecurringHandler) Create(ctx *gin.Context) {
	var req createRecurringRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.uc.Create(ctx.Request.Context(), usecase.CreateRecurringInput{
		OwnerID:  ctx.GetString("ownerID"),
		Name:     req.Name,
		CronExpr: req.CronExpr,
		Message:  req.Message,
		Target:   req.Target,
		Voice:    req.Voice,
		Speed:    req.Speed,
		Volume:   req.Volume,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCronExpr):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidCronExpr})
		case errors.Is(err, domain.ErrRecurringNameConflict):
			ctx.JSON(http.StatusConflict, gin.H{"error": errRecurringNameConflict})
		default:
			h.logger.Error("create recurring reminder", "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusCreated, toRecurringResponse(rec))
}

func (h *RecurringHandler) List(ctx *gin.Context) {
	input := repository.ListRecurringInput{OwnerID: ctx.GetString("ownerID")}

	if limit := ctx.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		input.Limit = n
	}
	if cursor := ctx.Query("cursor_time"); cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "cursor_time must be RFC 3339"})
			return
		}
		input.CursorTime = &t
		input.CursorID = ctx.Query("cursor_id")
	}

	recs, err := h.uc.List(ctx.Request.Context(), input)
	if err != nil {
		h.logger.Error("list recurring reminders", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	resp := make([]recurringResponse, 0, len(recs))
	for _, r := range recs {
		resp = append(resp, toRecurringResponse(r))
	}
	ctx.JSON(http.StatusOK, gin.H{"recurring": resp})
}

func (h *RecurringHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	rec, err := h.uc.GetByID(ctx.Request.Context(), id, ctx.GetString("ownerID"))
	if err != nil {
		if errors.Is(err, domain.ErrRecurringNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errRecurringNotFound})
			return
		}
		h.logger.Error("get recurring reminder", "recurring_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, toRecurringResponse(rec))
}

func (h *RecurringHandler) Pause(ctx *gin.Context) {
	h.setPaused(ctx, true)
}

func (h *RecurringHandler) Resume(ctx *gin.Context) {
	h.setPaused(ctx, false)
}

func (h *RecurringHandler) setPaused(ctx *gin.Context, paused bool) {
	id := ctx.Param("id")

	var err error
	if paused {
		err = h.uc.Pause(ctx.Request.Context(), id, ctx.GetString("ownerID"))
	} else {
		err = h.uc.Resume(ctx.Request.Context(), id, ctx.GetString("ownerID"))
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRecurringNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errRecurringNotFound})
		case errors.Is(err, domain.ErrRecurringAlreadyPaused):
			ctx.JSON(http.StatusConflict, gin.H{"error": errAlreadyPaused})
		case errors.Is(err, domain.ErrRecurringNotPaused):
			ctx.JSON(http.StatusConflict, gin.H{"error": errNotPaused})
		default:
			h.logger.Error("set recurring paused", "recurring_id", id, "paused", paused, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *RecurringHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := h.uc.Delete(ctx.Request.Context(), id, ctx.GetString("ownerID")); err != nil {
		if errors.Is(err, domain.ErrRecurringNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errRecurringNotFound})
			return
		}
		h.logger.Error("delete recurring reminder", "recurring_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.Status(http.StatusNoContent)
}

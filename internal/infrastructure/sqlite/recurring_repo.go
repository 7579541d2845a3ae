package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/repository"
	"github.com/google/uuid"
)

const recurringColumns = `id, owner_id, name, cron_expr, payload, paused,
	next_run_at, last_run_at, created_at, updated_at`

type RecurringRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRecurringRepository(db *sql.DB, logger *slog.Logger) *RecurringRepository {
	return &RecurringRepository{db: db, logger: logger.With("component", "recurring_repo")}
}

func (r *RecurringRepository) Create(ctx context.Context, rec *domain.RecurringReminder) (*domain.RecurringReminder, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	created := *rec
	created.ID = uuid.NewString()
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recurring_reminders (id, owner_id, name, cron_expr, payload, paused, next_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, rec.OwnerID, rec.Name, rec.CronExpr, string(payload),
		rec.Paused, rec.NextRunAt.UnixMilli(),
		created.CreatedAt.UnixMilli(), created.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrRecurringNameConflict
		}
		return nil, fmt.Errorf("insert recurring reminder: %w", err)
	}
	return &created, nil
}

func (r *RecurringRepository) GetByID(ctx context.Context, id, ownerID string) (*domain.RecurringReminder, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_reminders WHERE id = ? AND owner_id = ?`,
		id, ownerID)
	return scanRecurring(row)
}

func (r *RecurringRepository) List(ctx context.Context, input repository.ListRecurringInput) ([]*domain.RecurringReminder, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_reminders WHERE owner_id = ?`
	args := []any{input.OwnerID}

	if input.CursorTime != nil {
		query += ` AND (created_at, id) < (?, ?)`
		args = append(args, input.CursorTime.UnixMilli(), input.CursorID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, input.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring reminders: %w", err)
	}
	defer rows.Close()

	var recs []*domain.RecurringReminder
	for rows.Next() {
		rec, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *RecurringRepository) SetPaused(ctx context.Context, id, ownerID string, paused bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_reminders SET paused = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ? AND paused = ?`,
		paused, time.Now().UnixMilli(), id, ownerID, !paused)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id, ownerID); err != nil {
			return err
		}
		if paused {
			return domain.ErrRecurringAlreadyPaused
		}
		return domain.ErrRecurringNotPaused
	}
	return nil
}

func (r *RecurringRepository) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM recurring_reminders WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete recurring reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete recurring reminder: %w", err)
	}
	if n == 0 {
		return domain.ErrRecurringNotFound
	}
	return nil
}

func (r *RecurringRepository) ClaimAndFire(ctx context.Context, limit int, computeNext func(*domain.RecurringReminder) time.Time) ([]*domain.Reminder, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+recurringColumns+`
		FROM recurring_reminders
		WHERE next_run_at <= ? AND paused = 0
		ORDER BY next_run_at ASC
		LIMIT ?`, now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("claim recurring reminders: %w", err)
	}

	var recs []*domain.RecurringReminder
	for rows.Next() {
		rec, scanErr := scanRecurring(rows)
		if scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		recs = append(recs, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring reminders: %w", err)
	}

	var fired []*domain.Reminder

	for _, rec := range recs {
		next := computeNext(rec)
		key := fmt.Sprintf("rec:%s:%d", rec.ID, rec.NextRunAt.Unix())

		payload, marshalErr := json.Marshal(rec.Payload)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshal payload: %w", marshalErr)
		}

		rem := &domain.Reminder{
			ID:                domain.NewReminderID(key, now),
			OwnerID:           rec.OwnerID,
			CorrelationKey:    key,
			Payload:           rec.Payload,
			Status:            domain.StatusDelayed,
			DueAt:             now,
			AttemptsRemaining: 1,
			CreatedAt:         now,
		}

		_, insertErr := tx.ExecContext(ctx, `
			INSERT INTO reminders (
				id, owner_id, correlation_key, payload, status, due_at,
				priority, attempts_remaining, created_at
			) VALUES (?, ?, ?, ?, ?, ?, 0, 1, ?)`,
			rem.ID, rem.OwnerID, rem.CorrelationKey, string(payload),
			rem.Status, rem.DueAt.UnixMilli(), rem.CreatedAt.UnixMilli(),
		)
		if insertErr != nil {
			if isUniqueViolation(insertErr) {
				r.logger.Warn("duplicate fire for recurring reminder, skipping",
					"recurring_id", rec.ID,
					"correlation_key", key,
				)
			} else {
				return nil, fmt.Errorf("insert reminder for recurring %s: %w", rec.ID, insertErr)
			}
		} else {
			fired = append(fired, rem)
		}

		if _, updateErr := tx.ExecContext(ctx,
			`UPDATE recurring_reminders SET next_run_at = ?, last_run_at = ?, updated_at = ? WHERE id = ?`,
			next.UnixMilli(), now.UnixMilli(), now.UnixMilli(), rec.ID,
		); updateErr != nil {
			return nil, fmt.Errorf("advance recurring reminder %s: %w", rec.ID, updateErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return fired, nil
}

func scanRecurring(row rowScanner) (*domain.RecurringReminder, error) {
	var (
		rec       domain.RecurringReminder
		payload   string
		nextRunAt int64
		lastRunAt sql.NullInt64
		createdAt int64
		updatedAt int64
	)

	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.Name, &rec.CronExpr, &payload, &rec.Paused,
		&nextRunAt, &lastRunAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecurringNotFound
		}
		return nil, fmt.Errorf("scan recurring reminder: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	rec.NextRunAt = time.UnixMilli(nextRunAt)
	rec.LastRunAt = nullTime(lastRunAt)
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return &rec, nil
}

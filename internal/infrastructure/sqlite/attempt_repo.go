package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/google/uuid"
)

type AttemptRepository struct {
	db *sql.DB
}

func NewAttemptRepository(db *sql.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) CreateAttempt(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	created := *a
	created.ID = uuid.NewString()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attempts (id, reminder_id, attempt_num, worker_id, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		created.ID, a.ReminderID, a.AttemptNum, a.WorkerID, a.StartedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return &created, nil
}

func (r *AttemptRepository) CompleteAttempt(ctx context.Context, id string, callRef *string, errMsg *string, durationMS int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attempts
		SET completed_at = ?, call_ref = ?, error = ?, duration_ms = ?
		WHERE id = ?`,
		time.Now().UnixMilli(), callRef, errMsg, durationMS, id,
	)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) ListByReminderID(ctx context.Context, reminderID string) ([]*domain.Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, reminder_id, attempt_num, worker_id, started_at,
		       completed_at, call_ref, error, duration_ms
		FROM attempts
		WHERE reminder_id = ?
		ORDER BY started_at ASC`, reminderID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.Attempt
	for rows.Next() {
		var (
			a           domain.Attempt
			startedAt   int64
			completedAt sql.NullInt64
			callRef     sql.NullString
			errMsg      sql.NullString
			durationMS  sql.NullInt64
		)
		if err := rows.Scan(
			&a.ID, &a.ReminderID, &a.AttemptNum, &a.WorkerID, &startedAt,
			&completedAt, &callRef, &errMsg, &durationMS,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.StartedAt = time.UnixMilli(startedAt)
		a.CompletedAt = nullTime(completedAt)
		a.CallRef = nullString(callRef)
		a.Error = nullString(errMsg)
		if durationMS.Valid {
			d := durationMS.Int64
			a.DurationMS = &d
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

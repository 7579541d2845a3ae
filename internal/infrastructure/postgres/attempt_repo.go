package postgres

import (
	"context"
	"fmt"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) CreateAttempt(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	query := `
		INSERT INTO attempts (reminder_id, attempt_num, worker_id, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, reminder_id, attempt_num, worker_id, started_at,
		          completed_at, call_ref, error, duration_ms`

	row := r.pool.QueryRow(ctx, query, a.ReminderID, a.AttemptNum, a.WorkerID, a.StartedAt)
	return scanAttempt(row)
}

func (r *AttemptRepository) CompleteAttempt(ctx context.Context, id string, callRef *string, errMsg *string, durationMS int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE attempts
		SET completed_at = NOW(),
		    call_ref     = $2,
		    error        = $3,
		    duration_ms  = $4
		WHERE id = $1`,
		id, callRef, errMsg, durationMS,
	)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) ListByReminderID(ctx context.Context, reminderID string) ([]*domain.Attempt, error) {
	query := `
		SELECT id, reminder_id, attempt_num, worker_id, started_at,
		       completed_at, call_ref, error, duration_ms
		FROM attempts
		WHERE reminder_id = $1
		ORDER BY started_at ASC`

	rows, err := r.pool.Query(ctx, query, reminderID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func scanAttempt(row rowScanner) (*domain.Attempt, error) {
	var a domain.Attempt
	err := row.Scan(
		&a.ID, &a.ReminderID, &a.AttemptNum, &a.WorkerID, &a.StartedAt,
		&a.CompletedAt, &a.CallRef, &a.Error, &a.DurationMS,
	)
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	return &a, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reminderColumns = `id, owner_id, correlation_key, payload, status, due_at,
	       priority, attempts_remaining, claimed_at, claimed_by, heartbeat_at,
	       completed_at, call_ref, last_error, retry_of, created_at`

type ReminderRepository struct {
	pool *pgxpool.Pool
}

func NewReminderRepository(pool *pgxpool.Pool) *ReminderRepository {
	return &ReminderRepository{pool: pool}
}

func (r *ReminderRepository) Create(ctx context.Context, rem *domain.Reminder) (*domain.Reminder, error) {
	query := `
		INSERT INTO reminders (
			id, owner_id, correlation_key, payload, status, due_at,
			priority, attempts_remaining, retry_of
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + reminderColumns

	row := r.pool.QueryRow(ctx, query,
		rem.ID,
		rem.OwnerID,
		rem.CorrelationKey,
		rem.Payload,
		rem.Status,
		rem.DueAt,
		rem.Priority,
		rem.AttemptsRemaining,
		rem.RetryOf,
	)

	created, err := scanReminder(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateReminder
		}
		return nil, err
	}
	return created, nil
}

func (r *ReminderRepository) ExistsByCorrelationKey(ctx context.Context, ownerID, correlationKey string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reminders WHERE owner_id = $1 AND correlation_key = $2)`,
		ownerID, correlationKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check correlation key: %w", err)
	}
	return exists, nil
}

func (r *ReminderRepository) GetByID(ctx context.Context, id, ownerID string) (*domain.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1 AND owner_id = $2`
	return scanReminder(r.pool.QueryRow(ctx, query, id, ownerID))
}

func (r *ReminderRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Reminder, error) {
	query := `
		SELECT ` + reminderColumns + `
		FROM reminders
		WHERE owner_id = $1 AND status IN ('delayed', 'active')
		ORDER BY due_at ASC`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

// Cancel deletes the row only while it is still delayed. A claim racing this
// delete flips the status to active first and wins; the delete then matches
// nothing and Cancel reports false.
func (r *ReminderRepository) Cancel(ctx context.Context, id, ownerID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM reminders
		WHERE id = $1 AND owner_id = $2 AND status = 'delayed'`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("cancel reminder: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Stats counts every status in a single aggregate pass so the snapshot is
// internally consistent under concurrent mutation.
func (r *ReminderRepository) Stats(ctx context.Context) (domain.Stats, error) {
	var s domain.Stats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'delayed' AND due_at <= NOW()),
			COUNT(*) FILTER (WHERE status = 'delayed' AND due_at >  NOW()),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM reminders`,
	).Scan(&s.Waiting, &s.Delayed, &s.Active, &s.Completed, &s.Failed)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("reminder stats: %w", err)
	}
	return s, nil
}

func (r *ReminderRepository) Claim(ctx context.Context, workerID string, limit int) ([]*domain.Reminder, error) {
	// FOR UPDATE SKIP LOCKED prevents double-execution across workers.
	// Priority is an advisory tie-breaker among simultaneously due rows.
	query := `
		UPDATE reminders
		SET    status       = 'active',
		       claimed_at   = NOW(),
		       claimed_by   = $1,
		       heartbeat_at = NOW()
		WHERE id IN (
			SELECT id FROM reminders
			WHERE  status = 'delayed'
			  AND  due_at <= NOW()
			ORDER BY priority DESC, due_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + reminderColumns

	rows, err := r.pool.Query(ctx, query, workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

func (r *ReminderRepository) UpdateHeartbeat(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE reminders SET heartbeat_at = NOW()
		WHERE id = $1 AND status = 'active'`, id)
	return err
}

func (r *ReminderRepository) Complete(ctx context.Context, id string, callRef *string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE reminders SET status = 'completed', completed_at = NOW(), call_ref = $2
		WHERE id = $1`, id, callRef)
	return err
}

func (r *ReminderRepository) FailTerminal(ctx context.Context, id string, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE reminders SET status = 'failed', last_error = $2
		WHERE id = $1`, id, lastError)
	return err
}

// RetryAsNew marks the original row failed and inserts its replacement in one
// transaction: the retry is an ordinary new delayed reminder carrying the
// decremented budget, elevated priority, and a retry_of link back. Failing
// the original first also frees the (owner, correlation_key) uniqueness for
// the replacement.
func (r *ReminderRepository) RetryAsNew(ctx context.Context, orig *domain.Reminder, lastError string, dueAt time.Time) (*domain.Reminder, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx,
		`UPDATE reminders SET status = 'failed', last_error = $2
		WHERE id = $1`, orig.ID, lastError); err != nil {
		return nil, fmt.Errorf("fail original reminder: %w", err)
	}

	replacement := &domain.Reminder{
		ID:                domain.NewReminderID(orig.CorrelationKey, time.Now()),
		OwnerID:           orig.OwnerID,
		CorrelationKey:    orig.CorrelationKey,
		Payload:           orig.Payload,
		Status:            domain.StatusDelayed,
		DueAt:             dueAt,
		Priority:          orig.Priority + 1,
		AttemptsRemaining: orig.AttemptsRemaining - 1,
		RetryOf:           &orig.ID,
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO reminders (
			id, owner_id, correlation_key, payload, status, due_at,
			priority, attempts_remaining, retry_of
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+reminderColumns,
		replacement.ID, replacement.OwnerID, replacement.CorrelationKey,
		replacement.Payload, replacement.Status, replacement.DueAt,
		replacement.Priority, replacement.AttemptsRemaining, replacement.RetryOf,
	)

	created, err := scanReminder(row)
	if err != nil {
		return nil, fmt.Errorf("insert retry reminder: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

func (r *ReminderRepository) RescheduleStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET    status             = 'delayed',
		       attempts_remaining = attempts_remaining - 1,
		       last_error         = 'worker timeout',
		       claimed_at         = NULL,
		       claimed_by         = NULL,
		       heartbeat_at       = NULL
		WHERE id IN (
			SELECT id FROM reminders
			WHERE  status             = 'active'
			  AND  heartbeat_at       < $1
			  AND  attempts_remaining > 0
			ORDER BY heartbeat_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	return int(tag.RowsAffected()), err
}

func (r *ReminderRepository) FailStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET    status     = 'failed',
		       last_error = 'worker timeout: retry budget exhausted'
		WHERE id IN (
			SELECT id FROM reminders
			WHERE  status             = 'active'
			  AND  heartbeat_at       < $1
			  AND  attempts_remaining <= 0
			ORDER BY heartbeat_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	return int(tag.RowsAffected()), err
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*domain.Reminder, error) {
	var rem domain.Reminder
	err := row.Scan(
		&rem.ID, &rem.OwnerID, &rem.CorrelationKey, &rem.Payload, &rem.Status,
		&rem.DueAt, &rem.Priority, &rem.AttemptsRemaining, &rem.ClaimedAt,
		&rem.ClaimedBy, &rem.HeartbeatAt, &rem.CompletedAt, &rem.CallRef,
		&rem.LastError, &rem.RetryOf, &rem.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReminderNotFound
		}
		return nil, fmt.Errorf("scan reminder: %w", err)
	}
	return &rem, nil
}

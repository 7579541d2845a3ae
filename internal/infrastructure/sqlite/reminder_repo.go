package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
)

const reminderColumns = `id, owner_id, correlation_key, payload, status, due_at,
	priority, attempts_remaining, claimed_at, claimed_by, heartbeat_at,
	completed_at, call_ref, last_error, retry_of, created_at`

type ReminderRepository struct {
	db *sql.DB
}

func NewReminderRepository(db *sql.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

func (r *ReminderRepository) Create(ctx context.Context, rem *domain.Reminder) (*domain.Reminder, error) {
	payload, err := json.Marshal(rem.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	created := *rem
	created.CreatedAt = time.Now()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reminders (
			id, owner_id, correlation_key, payload, status, due_at,
			priority, attempts_remaining, retry_of, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rem.ID, rem.OwnerID, rem.CorrelationKey, string(payload), rem.Status,
		rem.DueAt.UnixMilli(), rem.Priority, rem.AttemptsRemaining,
		rem.RetryOf, created.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateReminder
		}
		return nil, fmt.Errorf("insert reminder: %w", err)
	}
	return &created, nil
}

func (r *ReminderRepository) ExistsByCorrelationKey(ctx context.Context, ownerID, correlationKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM reminders WHERE owner_id = ? AND correlation_key = ?)`,
		ownerID, correlationKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check correlation key: %w", err)
	}
	return exists, nil
}

func (r *ReminderRepository) GetByID(ctx context.Context, id, ownerID string) (*domain.Reminder, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = ? AND owner_id = ?`,
		id, ownerID)
	return scanReminder(row)
}

func (r *ReminderRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE owner_id = ? AND status IN ('delayed', 'active')
		ORDER BY due_at ASC`, ownerID)
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

func (r *ReminderRepository) Cancel(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE id = ? AND owner_id = ? AND status = 'delayed'`,
		id, ownerID)
	if err != nil {
		return false, fmt.Errorf("cancel reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel reminder: %w", err)
	}
	return n > 0, nil
}

func (r *ReminderRepository) Stats(ctx context.Context) (domain.Stats, error) {
	now := time.Now().UnixMilli()
	var s domain.Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'delayed' AND due_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'delayed' AND due_at >  ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'active'    THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed'    THEN 1 ELSE 0 END), 0)
		FROM reminders`, now, now,
	).Scan(&s.Waiting, &s.Delayed, &s.Active, &s.Completed, &s.Failed)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("reminder stats: %w", err)
	}
	return s, nil
}

// Claim selects due rows and flips them active inside one transaction. With
// the pool capped at a single connection no two claimers can interleave,
// which gives the same no-double-execution guarantee SKIP LOCKED provides on
// postgres.
func (r *ReminderRepository) Claim(ctx context.Context, workerID string, limit int) ([]*domain.Reminder, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM reminders
		WHERE status = 'delayed' AND due_at <= ?
		ORDER BY priority DESC, due_at ASC
		LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due reminders: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due reminders: %w", err)
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	args := make([]any, 0, len(ids)+3)
	args = append(args, workerID, now, now)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	if _, err := tx.ExecContext(ctx, `
		UPDATE reminders
		SET status = 'active', claimed_by = ?, claimed_at = ?, heartbeat_at = ?
		WHERE id IN (`+placeholders+`) AND status = 'delayed'`, args...); err != nil {
		return nil, fmt.Errorf("claim reminders: %w", err)
	}

	claimed := make([]*domain.Reminder, 0, len(ids))
	for _, id := range ids {
		rem, err := scanReminder(tx.QueryRowContext(ctx,
			`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id))
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, rem)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

func (r *ReminderRepository) UpdateHeartbeat(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET heartbeat_at = ? WHERE id = ? AND status = 'active'`,
		time.Now().UnixMilli(), id)
	return err
}

func (r *ReminderRepository) Complete(ctx context.Context, id string, callRef *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET status = 'completed', completed_at = ?, call_ref = ? WHERE id = ?`,
		time.Now().UnixMilli(), callRef, id)
	return err
}

func (r *ReminderRepository) FailTerminal(ctx context.Context, id string, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET status = 'failed', last_error = ? WHERE id = ?`,
		lastError, id)
	return err
}

func (r *ReminderRepository) RetryAsNew(ctx context.Context, orig *domain.Reminder, lastError string, dueAt time.Time) (*domain.Reminder, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE reminders SET status = 'failed', last_error = ? WHERE id = ?`,
		lastError, orig.ID); err != nil {
		return nil, fmt.Errorf("fail original reminder: %w", err)
	}

	payload, err := json.Marshal(orig.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now()
	replacement := &domain.Reminder{
		ID:                domain.NewReminderID(orig.CorrelationKey, now),
		OwnerID:           orig.OwnerID,
		CorrelationKey:    orig.CorrelationKey,
		Payload:           orig.Payload,
		Status:            domain.StatusDelayed,
		DueAt:             dueAt,
		Priority:          orig.Priority + 1,
		AttemptsRemaining: orig.AttemptsRemaining - 1,
		RetryOf:           &orig.ID,
		CreatedAt:         now,
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reminders (
			id, owner_id, correlation_key, payload, status, due_at,
			priority, attempts_remaining, retry_of, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		replacement.ID, replacement.OwnerID, replacement.CorrelationKey,
		string(payload), replacement.Status, replacement.DueAt.UnixMilli(),
		replacement.Priority, replacement.AttemptsRemaining, replacement.RetryOf,
		replacement.CreatedAt.UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("insert retry reminder: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit retry: %w", err)
	}
	return replacement, nil
}

func (r *ReminderRepository) RescheduleStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reminders
		SET status = 'delayed', attempts_remaining = attempts_remaining - 1,
		    last_error = 'worker timeout', claimed_at = NULL, claimed_by = NULL,
		    heartbeat_at = NULL
		WHERE id IN (
			SELECT id FROM reminders
			WHERE status = 'active' AND heartbeat_at < ? AND attempts_remaining > 0
			ORDER BY heartbeat_at ASC
			LIMIT ?
		)`, staleCutoff.UnixMilli(), limit)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *ReminderRepository) FailStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reminders
		SET status = 'failed', last_error = 'worker timeout: retry budget exhausted'
		WHERE id IN (
			SELECT id FROM reminders
			WHERE status = 'active' AND heartbeat_at < ? AND attempts_remaining <= 0
			ORDER BY heartbeat_at ASC
			LIMIT ?
		)`, staleCutoff.UnixMilli(), limit)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*domain.Reminder, error) {
	var (
		rem       domain.Reminder
		payload   string
		dueAt     int64
		createdAt int64
		claimedAt, heartbeatAt, completedAt sql.NullInt64
		claimedBy, callRef, lastErr, retryOf sql.NullString
	)

	err := row.Scan(
		&rem.ID, &rem.OwnerID, &rem.CorrelationKey, &payload, &rem.Status,
		&dueAt, &rem.Priority, &rem.AttemptsRemaining, &claimedAt, &claimedBy,
		&heartbeatAt, &completedAt, &callRef, &lastErr, &retryOf, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReminderNotFound
		}
		return nil, fmt.Errorf("scan reminder: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &rem.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	rem.DueAt = time.UnixMilli(dueAt)
	rem.CreatedAt = time.UnixMilli(createdAt)
	rem.ClaimedAt = nullTime(claimedAt)
	rem.HeartbeatAt = nullTime(heartbeatAt)
	rem.CompletedAt = nullTime(completedAt)
	rem.ClaimedBy = nullString(claimedBy)
	rem.CallRef = nullString(callRef)
	rem.LastError = nullString(lastErr)
	rem.RetryOf = nullString(retryOf)
	return &rem, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

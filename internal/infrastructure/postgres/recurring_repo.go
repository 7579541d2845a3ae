package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/callwhen/callwhen/internal/domain"
	"github.com/callwhen/callwhen/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recurringColumns = `id, owner_id, name, cron_expr, payload, paused,
	       next_run_at, last_run_at, created_at, updated_at`

type RecurringRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewRecurringRepository(pool *pgxpool.Pool, logger *slog.Logger) *RecurringRepository {
	return &RecurringRepository{pool: pool, logger: logger.With("component", "recurring_repo")}
}

func (r *RecurringRepository) Create(ctx context.Context, rec *domain.RecurringReminder) (*domain.RecurringReminder, error) {
	query := `
		INSERT INTO recurring_reminders (owner_id, name, cron_expr, payload, paused, next_run_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + recurringColumns

	row := r.pool.QueryRow(ctx, query,
		rec.OwnerID, rec.Name, rec.CronExpr, rec.Payload, rec.Paused, rec.NextRunAt,
	)

	created, err := scanRecurring(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrRecurringNameConflict
		}
		return nil, err
	}
	return created, nil
}

func (r *RecurringRepository) GetByID(ctx context.Context, id, ownerID string) (*domain.RecurringReminder, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_reminders WHERE id = $1 AND owner_id = $2`
	return scanRecurring(r.pool.QueryRow(ctx, query, id, ownerID))
}

func (r *RecurringRepository) List(ctx context.Context, input repository.ListRecurringInput) ([]*domain.RecurringReminder, error) {
	args := []any{input.OwnerID}
	where := []string{"owner_id = $1"}

	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, input.Limit)

	query := fmt.Sprintf(`
		SELECT `+recurringColumns+`
		FROM recurring_reminders
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`,
		strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
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
	tag, err := r.pool.Exec(ctx,
		`UPDATE recurring_reminders SET paused = $3, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND paused = $4`,
		id, ownerID, paused, !paused)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish not-found vs already-in-desired-state.
		if _, err := r.GetByID(ctx, id, ownerID); err != nil {
			return err // ErrRecurringNotFound
		}
		if paused {
			return domain.ErrRecurringAlreadyPaused
		}
		return domain.ErrRecurringNotPaused
	}
	return nil
}

func (r *RecurringRepository) Delete(ctx context.Context, id, ownerID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM recurring_reminders WHERE id = $1 AND owner_id = $2`,
		id, ownerID)
	if err != nil {
		return fmt.Errorf("delete recurring reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecurringNotFound
	}
	return nil
}

// ClaimAndFire atomically claims due recurring reminders, inserts a delayed
// reminder for each, and advances next_run_at. All operations happen in a
// single transaction; no partial state on crash.
func (r *RecurringRepository) ClaimAndFire(ctx context.Context, limit int, computeNext func(*domain.RecurringReminder) time.Time) ([]*domain.Reminder, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// FOR UPDATE SKIP LOCKED prevents double-firing across replicas.
	rows, err := tx.Query(ctx, `
		SELECT `+recurringColumns+`
		FROM recurring_reminders
		WHERE next_run_at <= NOW() AND NOT paused
		ORDER BY next_run_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
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
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring reminders: %w", err)
	}

	var fired []*domain.Reminder

	for _, rec := range recs {
		next := computeNext(rec)
		key := fmt.Sprintf("rec:%s:%d", rec.ID, rec.NextRunAt.Unix())
		rem := &domain.Reminder{
			ID:                domain.NewReminderID(key, time.Now()),
			OwnerID:           rec.OwnerID,
			CorrelationKey:    key,
			Payload:           rec.Payload,
			Status:            domain.StatusDelayed,
			Priority:          0,
			AttemptsRemaining: 1,
		}

		// The correlation key guards against any edge-case duplicate fire.
		// The insert runs under a savepoint (a pgx nested transaction):
		// after a failed statement postgres aborts the whole transaction,
		// and a plain duplicate here would otherwise poison the next_run_at
		// advance for the entire batch.
		sub, subErr := tx.Begin(ctx)
		if subErr != nil {
			err = fmt.Errorf("begin savepoint: %w", subErr)
			return nil, err
		}

		row := sub.QueryRow(ctx, `
			INSERT INTO reminders (
				id, owner_id, correlation_key, payload, status, due_at,
				priority, attempts_remaining
			) VALUES ($1, $2, $3, $4, $5, NOW(), $6, $7)
			RETURNING `+reminderColumns,
			rem.ID, rem.OwnerID, rem.CorrelationKey, rem.Payload,
			rem.Status, rem.Priority, rem.AttemptsRemaining,
		)

		created, scanErr := scanReminder(row)
		switch {
		case scanErr == nil:
			if err = sub.Commit(ctx); err != nil {
				err = fmt.Errorf("release savepoint: %w", err)
				return nil, err
			}
			fired = append(fired, created)
		case isUniqueViolation(scanErr):
			_ = sub.Rollback(ctx)
			r.logger.Warn("duplicate fire for recurring reminder, skipping",
				"recurring_id", rec.ID,
				"correlation_key", key,
			)
			// Still advance next_run_at so the schedule progresses.
		default:
			_ = sub.Rollback(ctx)
			err = fmt.Errorf("insert reminder for recurring %s: %w", rec.ID, scanErr)
			return nil, err
		}

		if _, updateErr := tx.Exec(ctx,
			`UPDATE recurring_reminders SET next_run_at = $2, last_run_at = NOW(), updated_at = NOW() WHERE id = $1`,
			rec.ID, next,
		); updateErr != nil {
			err = fmt.Errorf("advance recurring reminder %s: %w", rec.ID, updateErr)
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return fired, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanRecurring(row rowScanner) (*domain.RecurringReminder, error) {
	var rec domain.RecurringReminder
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.Name, &rec.CronExpr, &rec.Payload, &rec.Paused,
		&rec.NextRunAt, &rec.LastRunAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecurringNotFound
		}
		return nil, fmt.Errorf("scan recurring reminder: %w", err)
	}
	return &rec, nil
}

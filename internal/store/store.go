// Package store is the durable record of scheduled messages and their
// execution logs, backed by PostgreSQL. All scheduling-state updates go
// through fenced UPDATEs so concurrent writers (a worker finishing an
// occurrence, a user cancelling) can never produce a lost update.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/recurrence"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

const messageColumns = `
	id, ticket_id, user_id, body, message_type, media_url, is_private,
	recurrence, weekdays, day_of_month, timezone, scheduled_for,
	last_run_at, next_run_at, job_id,
	status, cancel_reason, cancelled_at,
	state_version, created_at, updated_at`

// Create inserts a new scheduled message.
func (s *Store) Create(ctx context.Context, m *domain.ScheduledMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_messages (
			id, ticket_id, user_id, body, message_type, media_url, is_private,
			recurrence, weekdays, day_of_month, timezone, scheduled_for,
			next_run_at, job_id, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		m.ID, m.TicketID, m.UserID, m.Body, string(m.Type), m.MediaURL, m.IsPrivate,
		string(m.Rule.Kind), recurrence.Tokens(m.Rule.Weekdays), m.Rule.DayOfMonth,
		m.Timezone, m.ScheduledFor, m.NextRunAt, m.JobID, string(m.Status))
	if err != nil {
		return fmt.Errorf("insert scheduled message: %w", err)
	}
	return nil
}

// Get fetches one message by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.ScheduledMessage, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+messageColumns+` FROM scheduled_messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return m, err
}

// List returns messages, optionally filtered by status, newest first.
func (s *Store) List(ctx context.Context, status *domain.Status, limit int) ([]*domain.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows pgx.Rows
		err  error
	)
	if status != nil {
		rows, err = s.pool.Query(ctx,
			`SELECT`+messageColumns+` FROM scheduled_messages
			  WHERE status = $1 ORDER BY created_at DESC LIMIT $2`,
			string(*status), limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT`+messageColumns+` FROM scheduled_messages
			  ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ScheduledMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Transition is one fenced scheduling-state update. The update applies only
// while the row's status is in ExpectStatus and, when ExpectJobID is set,
// while job_id still matches — losing either fence yields ErrConflict.
type Transition struct {
	ID           uuid.UUID
	ExpectStatus []domain.Status
	ExpectJobID  *uuid.UUID

	Status       domain.Status
	JobID        *uuid.UUID
	NextRunAt    *time.Time
	CancelReason *string
	CancelledAt  *time.Time
}

// Apply executes a fenced transition.
func (s *Store) Apply(ctx context.Context, t Transition) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_messages SET
			status        = $1,
			job_id        = $2,
			next_run_at   = $3,
			cancel_reason = $4,
			cancelled_at  = $5,
			state_version = state_version + 1,
			updated_at    = NOW()
		WHERE id = $6
		  AND status = ANY($7::text[])
		  AND ($8::uuid IS NULL OR job_id = $8)`,
		string(t.Status), t.JobID, t.NextRunAt, t.CancelReason, t.CancelledAt,
		t.ID, statusStrings(t.ExpectStatus), t.ExpectJobID)
	if err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrMissing(ctx, t.ID)
	}
	return nil
}

// UpdateRule rewrites the recurrence fields and, in the same fenced update,
// the pending job handle. Used by rule edits, which must swap the job in
// lockstep with the rule to avoid racing an in-flight occurrence.
func (s *Store) UpdateRule(
	ctx context.Context,
	id uuid.UUID,
	expect []domain.Status,
	rule recurrence.Rule,
	timezone string,
	scheduledFor time.Time,
	jobID *uuid.UUID,
	nextRunAt *time.Time,
) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_messages SET
			recurrence    = $1,
			weekdays      = $2,
			day_of_month  = $3,
			timezone      = $4,
			scheduled_for = $5,
			job_id        = $6,
			next_run_at   = $7,
			state_version = state_version + 1,
			updated_at    = NOW()
		WHERE id = $8
		  AND status = ANY($9::text[])`,
		string(rule.Kind), recurrence.Tokens(rule.Weekdays), rule.DayOfMonth,
		timezone, scheduledFor, jobID, nextRunAt, id, statusStrings(expect))
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrMissing(ctx, id)
	}
	return nil
}

// conflictOrMissing resolves a zero-row fenced update: a row that exists but
// no longer matches the expectation is a lost race, a row that is gone is
// ErrNotFound.
func (s *Store) conflictOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM scheduled_messages WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check row %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

// RecordRun appends one execution log entry and stamps last_run_at in a
// single transaction. The log sequence is append-only; nothing ever updates
// or deletes rows in scheduled_message_logs.
func (s *Store) RecordRun(ctx context.Context, log *domain.MessageLog) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record run: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		INSERT INTO scheduled_message_logs (id, message_id, status, error, run_at)
		VALUES ($1, $2, $3, $4, $5)`,
		log.ID, log.MessageID, string(log.Status), log.Error, log.RunAt); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE scheduled_messages SET last_run_at = $1, updated_at = NOW()
		WHERE id = $2`, log.RunAt, log.MessageID); err != nil {
		return fmt.Errorf("stamp last_run_at: %w", err)
	}

	return tx.Commit(ctx)
}

// Logs returns the full execution history of a message in insertion order.
func (s *Store) Logs(ctx context.Context, messageID uuid.UUID) ([]domain.MessageLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, status, error, run_at, created_at
		  FROM scheduled_message_logs
		 WHERE message_id = $1
		 ORDER BY created_at ASC, run_at ASC`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MessageLog
	for rows.Next() {
		var (
			l      domain.MessageLog
			status string
		)
		if err := rows.Scan(&l.ID, &l.MessageID, &status, &l.Error, &l.RunAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Status = domain.LogStatus(status)
		out = append(out, l)
	}
	return out, rows.Err()
}

// DueRef points the reconciler at an ACTIVE message whose occurrence is due.
type DueRef struct {
	MessageID uuid.UUID
	JobID     uuid.UUID
	RunAt     time.Time
}

// DueActive lists ACTIVE messages with a pending job whose next_run_at is at
// or before the cutoff. The reconciler uses it to re-push jobs the delay
// queue lost.
func (s *Store) DueActive(ctx context.Context, cutoff time.Time, limit int) ([]DueRef, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, next_run_at
		  FROM scheduled_messages
		 WHERE status = 'ACTIVE'
		   AND job_id IS NOT NULL
		   AND next_run_at <= $1
		 ORDER BY next_run_at ASC
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DueRef
	for rows.Next() {
		var ref DueRef
		if err := rows.Scan(&ref.MessageID, &ref.JobID, &ref.RunAt); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func scanMessage(row pgx.Row) (*domain.ScheduledMessage, error) {
	var (
		m        domain.ScheduledMessage
		msgType  string
		kind     string
		weekdays []string
		status   string
	)
	err := row.Scan(
		&m.ID, &m.TicketID, &m.UserID, &m.Body, &msgType, &m.MediaURL, &m.IsPrivate,
		&kind, &weekdays, &m.Rule.DayOfMonth, &m.Timezone, &m.ScheduledFor,
		&m.LastRunAt, &m.NextRunAt, &m.JobID,
		&status, &m.CancelReason, &m.CancelledAt,
		&m.StateVersion, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Type = domain.MessageType(msgType)
	m.Rule.Kind = recurrence.Kind(kind)
	m.Status = domain.Status(status)
	if m.Rule.Weekdays, err = recurrence.ParseWeekdays(weekdays); err != nil {
		return nil, fmt.Errorf("corrupt weekdays on %s: %w", m.ID, err)
	}
	return &m, nil
}

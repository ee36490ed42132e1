package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/crosspost/db"
	"github.com/teranos/crosspost/errors"
)

// Store handles persistence of scheduled jobs
type Store struct {
	db      *db.Handle
	timeNow func() time.Time
}

// NewStore creates a new schedule store
func NewStore(h *db.Handle) *Store {
	return &Store{db: h, timeNow: time.Now}
}

// CreateJob validates and inserts a new pending job. ID, Status and the
// timestamps are filled in when empty.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	job.Platforms = NormalizePlatforms(job.Platforms)
	switch {
	case job.DraftID == "":
		return errors.NewInvalidRequestError("draft id is required")
	case job.UserID == "":
		return errors.NewInvalidRequestError("user id is required")
	case len(job.Platforms) == 0:
		return errors.NewInvalidRequestError("at least one platform is required")
	case job.ScheduledAt.IsZero():
		return errors.NewInvalidRequestError("scheduled time is required")
	}

	now := s.timeNow().UTC()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	job.ScheduledAt = job.ScheduledAt.UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	platforms, err := json.Marshal(job.Platforms)
	if err != nil {
		return errors.Wrap(err, "failed to encode platforms")
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO scheduled_jobs (
			id, draft_id, user_id, platforms, scheduled_at, status,
			retry_count, error_message, published_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		job.ID,
		job.DraftID,
		job.UserID,
		string(platforms),
		job.ScheduledAt,
		job.Status,
		job.RetryCount,
		nullString(job.ErrorMessage),
		nullTime(job.PublishedAt),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create scheduled job %s", job.ID)
	}
	return nil
}

// GetJob retrieves a scheduled job by ID
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("scheduled job %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get scheduled job %s", id)
	}
	return job, nil
}

// ListDue returns pending jobs scheduled at or before cutoff, oldest first.
// Ties are broken by id so every instance sees the same order.
func (s *Store) ListDue(ctx context.Context, cutoff time.Time, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, errors.NewInvalidRequestError("limit must be positive, got %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT `+jobColumns+`
		FROM scheduled_jobs
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC, id ASC
		LIMIT ?`), StatusPending, cutoff.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query due jobs")
	}
	return scanJobs(rows)
}

// ListJobs returns jobs newest-scheduled first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY scheduled_at DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list scheduled jobs")
	}
	return scanJobs(rows)
}

// UpdateJob writes the outcome of a processing pass. Only pending jobs can
// be updated; a job that left pending in the meantime (cancelled, or
// finished by another instance) yields errors.ErrConflict.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	job.UpdatedAt = s.timeNow().UTC()

	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE scheduled_jobs
		SET status = ?,
		    scheduled_at = ?,
		    retry_count = ?,
		    error_message = ?,
		    published_at = ?,
		    updated_at = ?
		WHERE id = ? AND status = ?`),
		job.Status,
		job.ScheduledAt.UTC(),
		job.RetryCount,
		nullString(job.ErrorMessage),
		nullTime(job.PublishedAt),
		job.UpdatedAt,
		job.ID,
		StatusPending,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update scheduled job %s", job.ID)
	}
	return s.expectOneRow(ctx, result, job.ID, StatusPending)
}

// CancelJob moves a pending job to cancelled.
func (s *Store) CancelJob(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE scheduled_jobs
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		StatusCancelled, s.timeNow().UTC(), id, StatusPending)
	if err != nil {
		return errors.Wrapf(err, "failed to cancel scheduled job %s", id)
	}
	return s.expectOneRow(ctx, result, id, StatusPending)
}

// ResetJob puts a partial or failed job back to pending at scheduledAt with
// a fresh retry budget. Platforms that already succeeded are skipped when
// it runs again.
func (s *Store) ResetJob(ctx context.Context, id string, scheduledAt time.Time) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE scheduled_jobs
		SET status = ?, scheduled_at = ?, retry_count = 0, error_message = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`),
		StatusPending, scheduledAt.UTC(), s.timeNow().UTC(), id, StatusPartial, StatusFailed)
	if err != nil {
		return errors.Wrapf(err, "failed to reset scheduled job %s", id)
	}
	return s.expectOneRow(ctx, result, id, StatusPartial+" or "+StatusFailed)
}

// expectOneRow turns a zero-row conditional update into ErrNotFound or
// ErrConflict depending on whether the job exists.
func (s *Store) expectOneRow(ctx context.Context, result sql.Result, id, wantStatus string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n == 1 {
		return nil
	}

	current, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	err = errors.Wrapf(errors.ErrConflict, "scheduled job %s is %s", id, current.Status)
	return errors.WithDetailf(err, "Expected status: %s", wantStatus)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

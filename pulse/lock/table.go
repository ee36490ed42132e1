package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/crosspost/db"
	"github.com/teranos/crosspost/errors"
)

// TableLocker stores leases as rows in job_locks. It works on any SQL
// store; a crashed holder's row is reclaimable once expires_at passes, so
// the TTL must exceed the longest expected job.
type TableLocker struct {
	db      *db.Handle
	ttl     time.Duration
	logger  *zap.SugaredLogger
	timeNow func() time.Time
}

// NewTableLocker creates a lease-table locker
func NewTableLocker(h *db.Handle, ttl time.Duration, logger *zap.SugaredLogger) *TableLocker {
	return NewTableLockerWithClock(h, ttl, logger, time.Now)
}

// NewTableLockerWithClock creates a lease-table locker with an injectable clock (for testing)
func NewTableLockerWithClock(h *db.Handle, ttl time.Duration, logger *zap.SugaredLogger, timeNow func() time.Time) *TableLocker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TableLocker{db: h, ttl: ttl, logger: logger, timeNow: timeNow}
}

// Acquire inserts a lease row, taking over an expired one in the same
// statement.
func (l *TableLocker) Acquire(ctx context.Context, jobID string) (Lease, bool, error) {
	now := l.timeNow().UTC()
	holder := uuid.NewString()

	res, err := l.db.ExecContext(ctx, l.db.Rebind(`
		INSERT INTO job_locks (lock_key, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (lock_key) DO UPDATE
		SET holder = excluded.holder, acquired_at = excluded.acquired_at, expires_at = excluded.expires_at
		WHERE job_locks.expires_at <= excluded.acquired_at`),
		jobID, holder, now, now.Add(l.ttl))
	if err != nil {
		err = errors.Wrap(err, "failed to acquire lease")
		return nil, false, errors.WithDetail(err, "Job ID: "+jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to read lease result")
	}
	if n == 0 {
		return nil, false, nil
	}

	l.logger.Debugw("Lease acquired", "job_id", jobID, "holder", holder, "ttl", l.ttl)
	return &tableLease{locker: l, jobID: jobID, holder: holder}, true, nil
}

type tableLease struct {
	locker *TableLocker
	jobID  string
	holder string
}

// Release deletes the row only if this lease still owns it.
func (l *tableLease) Release(ctx context.Context) error {
	h := l.locker.db
	res, err := h.ExecContext(ctx, h.Rebind(`DELETE FROM job_locks WHERE lock_key = ? AND holder = ?`), l.jobID, l.holder)
	if err != nil {
		return errors.Wrapf(err, "failed to release lease for job %s", l.jobID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		l.locker.logger.Warnw("Lease expired before release", "job_id", l.jobID, "holder", l.holder)
	}
	return nil
}

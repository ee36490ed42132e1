package lock

import (
	"context"
	"database/sql"
	"database/sql/driver"

	"go.uber.org/zap"

	"github.com/teranos/crosspost/errors"
)

// AdvisoryLocker uses Postgres session-level advisory locks. Each lease
// pins one pooled connection; if the process dies the session ends and the
// lock goes with it.
type AdvisoryLocker struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewAdvisoryLocker creates a locker over a pgx-backed *sql.DB
func NewAdvisoryLocker(db *sql.DB, logger *zap.SugaredLogger) *AdvisoryLocker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AdvisoryLocker{db: db, logger: logger}
}

// Acquire tries pg_try_advisory_lock on a dedicated connection.
func (l *AdvisoryLocker) Acquire(ctx context.Context, jobID string) (Lease, bool, error) {
	key := Key(jobID)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to get connection for advisory lock")
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
		conn.Close()
		err = errors.Wrap(err, "failed to try advisory lock")
		return nil, false, errors.WithDetail(err, "Job ID: "+jobID)
	}
	if !acquired {
		conn.Close()
		return nil, false, nil
	}

	l.logger.Debugw("Advisory lock acquired", "job_id", jobID, "lock_key", key)
	return &advisoryLease{conn: conn, key: key, jobID: jobID, logger: l.logger}, true, nil
}

type advisoryLease struct {
	conn   *sql.Conn
	key    int64
	jobID  string
	logger *zap.SugaredLogger
}

func (l *advisoryLease) Release(ctx context.Context) error {
	var released bool
	err := l.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.key).Scan(&released)
	if err == nil && released {
		return l.conn.Close()
	}

	// The session may still hold the lock. Returning it to the pool would
	// leak the lock to whoever borrows the connection next, so discard it.
	_ = l.conn.Raw(func(any) error { return driver.ErrBadConn })
	l.conn.Close()

	if err != nil {
		return errors.Wrapf(err, "failed to release advisory lock for job %s", l.jobID)
	}
	l.logger.Warnw("Advisory lock was not held at release", "job_id", l.jobID, "lock_key", l.key)
	return nil
}

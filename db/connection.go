package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/crosspost/am"
	"github.com/teranos/crosspost/errors"
)

// SQLiteBusyTimeoutMS is how long SQLite waits on a locked database before failing
const SQLiteBusyTimeoutMS = 5000

// Open opens the database for the given driver ("sqlite3" or "pgx").
// If logger is provided, logs database operations; otherwise operates silently.
func Open(driver, dsn string, logger *zap.SugaredLogger) (*Handle, error) {
	switch Dialect(driver) {
	case SQLite:
		return OpenSQLite(dsn, logger)
	case Postgres:
		return OpenPostgres(dsn, logger)
	default:
		return nil, errors.Newf("unsupported database driver %q", driver)
	}
}

// OpenSQLite opens a SQLite database at the specified path with WAL,
// foreign keys, a busy timeout and immediate write transactions. The
// settings go in the DSN so every pooled connection gets them.
func OpenSQLite(path string, logger *zap.SugaredLogger) (*Handle, error) {
	if logger != nil {
		logger.Debugw("Opening database", "driver", SQLite, "path", path)
	}
	if !strings.Contains(path, "?") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), am.DefaultDirPermissions); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory for %s", path)
		}
	}
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}

	if logger != nil {
		logger.Infow("Database opened", "driver", SQLite, "path", path, "wal_mode", true)
	}

	return &Handle{DB: db, Dialect: SQLite}, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d&_txlock=immediate",
		path, SQLiteBusyTimeoutMS)
}

// OpenPostgres opens a Postgres database through the pgx stdlib driver.
// Each advisory lock pins one pooled connection, so the pool needs headroom
// above the engine's concurrency.
func OpenPostgres(dsn string, logger *zap.SugaredLogger) (*Handle, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	if logger != nil {
		logger.Infow("Database opened", "driver", Postgres)
	}

	return &Handle{DB: db, Dialect: Postgres}, nil
}

// OpenWithMigrations opens the database and applies pending migrations.
func OpenWithMigrations(driver, dsn string, logger *zap.SugaredLogger) (*Handle, error) {
	h, err := Open(driver, dsn, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(h, logger); err != nil {
		h.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return h, nil
}

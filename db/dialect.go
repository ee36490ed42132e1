package db

import (
	"database/sql"
	"strconv"
	"strings"
)

// Dialect names the SQL flavour behind a Handle.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "pgx"
)

// Handle is a *sql.DB that knows its dialect. Queries are written with
// `?` placeholders and passed through Rebind before execution.
type Handle struct {
	*sql.DB
	Dialect Dialect
}

// Wrap pairs an existing *sql.DB with its dialect (used by tests with sqlmock).
func Wrap(db *sql.DB, dialect Dialect) *Handle {
	return &Handle{DB: db, Dialect: dialect}
}

// Rebind rewrites `?` placeholders for the handle's dialect.
func (h *Handle) Rebind(query string) string {
	return Rebind(h.Dialect, query)
}

// Rebind rewrites `?` placeholders into `$1, $2, ...` for Postgres.
// Queries in this module never contain literal question marks.
func Rebind(d Dialect, query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

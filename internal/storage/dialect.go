package storage

import (
	"strconv"
	"strings"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// dialect hides the handful of SQL differences between SQLite and Postgres.
// Queries are written once with ? placeholders and rebound per driver.
type dialect struct {
	driver string
}

func (d dialect) isPostgres() bool {
	return d.driver == DriverPostgres
}

// rebind rewrites ? placeholders into $n for Postgres.
func (d dialect) rebind(query string) string {
	if !d.isPostgres() {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ddl expands the column type placeholders used in migrations.
func (d dialect) ddl(stmt string) string {
	if d.isPostgres() {
		return strings.NewReplacer(
			"{{id}}", "BIGSERIAL PRIMARY KEY",
			"{{time}}", "TIMESTAMPTZ",
			"{{money}}", "NUMERIC(18,4)",
			"{{bigint}}", "BIGINT",
			"{{float}}", "DOUBLE PRECISION",
		).Replace(stmt)
	}
	return strings.NewReplacer(
		"{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{time}}", "DATETIME",
		"{{money}}", "TEXT",
		"{{bigint}}", "INTEGER",
		"{{float}}", "REAL",
	).Replace(stmt)
}

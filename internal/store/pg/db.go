// Package pg implements the store interfaces (internal/store) on top of
// Postgres, reached through database/sql with the pgx stdlib driver —
// the same database/sql + $N-placeholder idiom the teacher's own
// internal/store/pg package uses (see sessions.go's query style).
package pg

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB opens and pings a Postgres connection pool from dsn.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return db, nil
}

// Package sqlite implements the store interfaces (internal/store) on a
// single SQLite file via modernc.org/sqlite — a pure-Go driver, so the
// binary stays cgo-free, for local development and tests where spinning
// up Postgres is unwanted.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenDB opens (creating if absent) a SQLite database file at path and
// enables WAL mode plus foreign keys.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		return nil, fmt.Errorf("sqlite: pragma: %w", err)
	}
	// A single writer is enforced by the Write Queue above this layer;
	// SQLite itself only allows one writer at a time regardless, so cap
	// the pool to avoid SQLITE_BUSY from concurrent readers during a write.
	db.SetMaxOpenConns(1)
	return db, nil
}

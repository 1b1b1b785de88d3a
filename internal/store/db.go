// Package store persists directory snapshots in a per-session SQLite file.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const pragmas = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// DB is the session's snapshot.db.
type DB struct {
	*sql.DB
}

// Open connects to the SQLite file at path, creating it if needed.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open snapshot db: ping: %w", err)
	}
	return &DB{conn}, nil
}

// Package audit persists a durable record of admin console invocations
// to a local SQLite database: database/sql over modernc.org/sqlite, WAL
// journal mode, and create-if-missing schema on open.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store appends-only records console invocations.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS console_invocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			occurred_at TEXT NOT NULL,
			login TEXT NOT NULL,
			command TEXT NOT NULL,
			reply TEXT NOT NULL
		)
	`)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordInvocation appends one console invocation row. login is the
// issuing session's login name; the session handler records only
// authenticated invocations. Write failures are the caller's to log; they are
// never fatal to the console reply itself, which has already gone out
// over the socket by the time this is called.
func (s *Store) RecordInvocation(login, command, reply string) error {
	const maxReplyLen = 2048
	if len(reply) > maxReplyLen {
		reply = reply[:maxReplyLen]
	}
	_, err := s.db.Exec(
		"INSERT INTO console_invocations (occurred_at, login, command, reply) VALUES (?, ?, ?, ?)",
		time.Now().UTC().Format(time.RFC3339Nano), login, command, reply,
	)
	if err != nil {
		return fmt.Errorf("record console invocation: %w", err)
	}
	return nil
}

// Invocation is one recorded console invocation, returned by Recent.
type Invocation struct {
	ID         int64
	OccurredAt string
	Login      string
	Command    string
	Reply      string
}

// Recent returns the most recent invocations, newest first, up to limit.
func (s *Store) Recent(limit int) ([]Invocation, error) {
	rows, err := s.db.Query(
		"SELECT id, occurred_at, login, command, reply FROM console_invocations ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent invocations: %w", err)
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		var inv Invocation
		if err := rows.Scan(&inv.ID, &inv.OccurredAt, &inv.Login, &inv.Command, &inv.Reply); err != nil {
			return nil, fmt.Errorf("scan invocation row: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Package storage provides the SQLite-backed audit event log.
// Every authentication attempt, connection lifecycle change, and relayed
// message is recorded for later inspection. The audit log is an operator
// trail, not the broker's history: the in-memory history ring in the
// registry is what clients query.
package storage

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	// SQLite driver - imported for side effects (registers the driver).
	// Using modernc.org/sqlite which is a pure-Go implementation that
	// doesn't require CGO, making cross-compilation and testing easier.
	"database/sql"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Audit event kinds. Stable strings; stored as-is.
const (
	EventLogin              = "login"
	EventLoginFailed        = "login_failed"
	EventAuthRejected       = "auth_rejected"
	EventDeviceConnected    = "device_connected"
	EventDeviceDisconnected = "device_disconnected"
	EventClientConnected    = "client_connected"
	EventClientDisconnected = "client_disconnected"
	EventCommandRelayed     = "command_relayed"
	EventStatusBroadcast    = "status_broadcast"
)

// Event is one audit log entry.
type Event struct {
	// ID is the unique identifier for this entry.
	ID string

	// At is when the event occurred.
	At time.Time

	// Kind is one of the Event* constants.
	Kind string

	// ConnID is the role-prefixed connection identifier the event relates
	// to. Empty for events with no connection (e.g. failed logins).
	ConnID string

	// Detail is free-form context, typically the serialized message.
	Detail string
}

// AuditStore persists audit events to SQLite. It creates the database and
// table on first use and supports concurrent access through internal
// locking.
type AuditStore struct {
	db *sql.DB      // Database connection handle.
	mu sync.Mutex   // Guards all database operations.

	// timeNow returns the current time. Replaced in tests.
	timeNow func() time.Time
}

// NewAuditStore opens or creates a SQLite database at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func NewAuditStore(path string) (*AuditStore, error) {
	log.Printf("storage: opening audit database at %s", path)

	// busy_timeout handles concurrent access; the modernc.org/sqlite
	// driver uses _pragma query parameters.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &AuditStore{db: db, timeNow: time.Now}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// initSchema creates the events table if it doesn't exist.
func (s *AuditStore) initSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS events (
			id      TEXT PRIMARY KEY,
			at      TEXT NOT NULL,
			kind    TEXT NOT NULL,
			conn_id TEXT NOT NULL DEFAULT '',
			detail  TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *AuditStore) Close() error {
	log.Printf("storage: closing audit database")
	return s.db.Close()
}

// Record appends an audit event. The entry ID and timestamp are assigned
// here so call sites stay one-liners.
func (s *AuditStore) Record(kind, connID, detail string) error {
	if kind == "" {
		return errors.New("event kind cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `INSERT INTO events (id, at, kind, conn_id, detail) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query,
		uuid.NewString(),
		s.timeNow().UTC().Format(time.RFC3339Nano),
		kind,
		connID,
		detail,
	)
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	return nil
}

// ListRecent returns the most recent events in chronological order (oldest
// first). The limit parameter caps the number returned; limit <= 0 returns
// all entries.
func (s *AuditStore) ListRecent(limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, at, kind, conn_id, detail FROM events ORDER BY at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var at string
		if err := rows.Scan(&e.ID, &at, &e.Kind, &e.ConnID, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse event time %q: %w", at, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	// The query returns newest first to apply the limit; flip back to
	// chronological order for callers.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Count returns the total number of recorded events.
func (s *AuditStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

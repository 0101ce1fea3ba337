// Package journal persists dispatched events to a local SQLite database so
// operators can review recent alerts without trawling logs. The journal is
// best-effort: failures are reported to callers, who log and move on.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xnetvn/monitord/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	source     TEXT NOT NULL,
	severity   TEXT NOT NULL,
	entity     TEXT NOT NULL,
	message    TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
`

// Entry is one journaled event row.
type Entry struct {
	ID        string
	Type      string
	Source    string
	Severity  string
	Entity    string
	Message   string
	Detail    string
	CreatedAt time.Time
}

// Journal is a SQLite-backed event log.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// One writer; the daemon is the only client.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one event.
func (j *Journal) Record(e events.Event) error {
	var data string
	if len(e.Data) > 0 {
		raw, err := json.Marshal(e.Data)
		if err == nil {
			data = string(raw)
		}
	}
	_, err := j.db.Exec(
		`INSERT OR IGNORE INTO events (id, type, source, severity, entity, message, detail, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), string(e.Source), string(e.Severity),
		e.Entity, e.Message, e.Detail, data, e.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(
		`SELECT id, type, source, severity, entity, message, detail, created_at
		 FROM events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &e.Severity,
			&e.Entity, &e.Message, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneOlderThan deletes entries older than age and returns how many went.
func (j *Journal) PruneOlderThan(age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).UTC()
	res, err := j.db.Exec(`DELETE FROM events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	return res.RowsAffected()
}

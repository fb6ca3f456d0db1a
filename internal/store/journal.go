// Package store persists guarded-call outcomes to a local SQLite journal
// so an operator can inspect recent failures after the fact. The journal
// is optional; an empty path disables it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tytohq/aurora/internal/processor"
)

// Journal is a SQLite-backed outcome log implementing processor.Journal.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	// Single writer; the processor loop is the only appender.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outcomes (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			event_type  TEXT NOT NULL,
			channel_id  TEXT NOT NULL,
			message_id  TEXT NOT NULL,
			ok          INTEGER NOT NULL,
			kind        TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL,
			created_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_created ON outcomes(created_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// Append records one outcome.
func (j *Journal) Append(ctx context.Context, e processor.JournalEntry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, event_type, channel_id, message_id, ok, kind, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.EventType, e.ChannelID, e.MessageID, boolInt(e.OK), e.Kind, e.DurationMS,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// RecentFailures returns the newest failed outcomes, most recent first.
func (j *Journal) RecentFailures(ctx context.Context, limit int) ([]processor.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, event_type, channel_id, message_id, ok, kind, duration_ms, created_at
		 FROM outcomes WHERE ok = 0 ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []processor.JournalEntry
	for rows.Next() {
		var e processor.JournalEntry
		var ok int
		var created string
		if err := rows.Scan(&e.RunID, &e.EventType, &e.ChannelID, &e.MessageID,
			&ok, &e.Kind, &e.DurationMS, &created); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		e.OK = ok != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migration/*.sql
var migrationFiles embed.FS

// Compile-time interface check.
var _ Journal = (*SQLiteStore)(nil)

// SQLiteStore implements Journal on a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the journal database at path and
// applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema, err := migrationFiles.ReadFile("migration/001_spin_events.sql")
	if err != nil {
		return fmt.Errorf("history: read migration file: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("history: execute schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record inserts ev, assigning an ID and timestamp when they are unset.
func (s *SQLiteStore) Record(ctx context.Context, ev Event) error {
	if ev.Device == "" || ev.Kind == "" {
		return fmt.Errorf("history: event needs device and kind")
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}

	const q = `INSERT INTO spin_events (id, device, kind, at, detail) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, ev.ID.String(), ev.Device, string(ev.Kind), ev.At.UnixNano(), ev.Detail); err != nil {
		return fmt.Errorf("history: record %s %s: %w", ev.Device, ev.Kind, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, device string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if device == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, device, kind, at, detail FROM spin_events ORDER BY at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, device, kind, at, detail FROM spin_events WHERE device = ? ORDER BY at DESC LIMIT ?`, device, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []Event{}
	for rows.Next() {
		var (
			id, dev, kind, detail string
			at                    int64
		)
		if err := rows.Scan(&id, &dev, &kind, &at, &detail); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("history: bad event id %q: %w", id, err)
		}
		events = append(events, Event{
			ID:     parsed,
			Device: dev,
			Kind:   Kind(kind),
			At:     time.Unix(0, at).UTC(),
			Detail: detail,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return events, nil
}

// CountSince counts events of kind for device at or after since.
func (s *SQLiteStore) CountSince(ctx context.Context, device string, kind Kind, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM spin_events WHERE device = ? AND kind = ? AND at >= ?`,
		device, string(kind), since.UnixNano(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

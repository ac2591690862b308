package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/calmirror/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS mappings (
    source_id         TEXT NOT NULL,
    source            TEXT NOT NULL,
    target            TEXT NOT NULL,
    target_id         TEXT NOT NULL,
    last_synced_at    TEXT NOT NULL DEFAULT '',
    source_updated_at TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (source_id, source, target)
);

CREATE INDEX IF NOT EXISTS idx_mappings_target ON mappings (target, target_id);
`

// SQLiteStore is the SQLite-backed mapping store. Every mutating call is its
// own implicit transaction, so the crash-consistency property of the file
// backend holds here too.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path, applies the schema, and
// configures WAL mode.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Find returns the mapping for the composite key, or (nil, nil) when the
// event was never synced to this target.
func (s *SQLiteStore) Find(ctx context.Context, sourceID string, source, target model.CalendarID) (*Mapping, error) {
	const q = `
		SELECT source_id, source, target, target_id, last_synced_at, source_updated_at
		FROM mappings WHERE source_id = ? AND source = ? AND target = ?`
	return scanMapping(s.db.QueryRowContext(ctx, q, sourceID, string(source), string(target)))
}

// ListByEdge returns all rows for one directed (source, target) edge.
func (s *SQLiteStore) ListByEdge(ctx context.Context, source, target model.CalendarID) ([]Mapping, error) {
	const q = `
		SELECT source_id, source, target, target_id, last_synced_at, source_updated_at
		FROM mappings WHERE source = ? AND target = ?`
	rows, err := s.db.QueryContext(ctx, q, string(source), string(target))
	if err != nil {
		return nil, fmt.Errorf("querying edge %s->%s: %w", source, target, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces the row for m's composite key.
func (s *SQLiteStore) Upsert(ctx context.Context, m Mapping) error {
	const q = `
		INSERT INTO mappings
		    (source_id, source, target, target_id, last_synced_at, source_updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, source, target) DO UPDATE SET
		    target_id         = excluded.target_id,
		    last_synced_at    = excluded.last_synced_at,
		    source_updated_at = excluded.source_updated_at`

	_, err := s.db.ExecContext(ctx, q,
		m.SourceID,
		string(m.Source),
		string(m.Target),
		m.TargetID,
		formatTime(m.LastSyncedAt),
		m.SourceUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting mapping %s/%s->%s: %w", m.Source, m.SourceID, m.Target, err)
	}
	return nil
}

// Remove deletes the row for the composite key. Removing an absent key is a
// no-op.
func (s *SQLiteStore) Remove(ctx context.Context, sourceID string, source, target model.CalendarID) error {
	const q = `DELETE FROM mappings WHERE source_id = ? AND source = ? AND target = ?`
	if _, err := s.db.ExecContext(ctx, q, sourceID, string(source), string(target)); err != nil {
		return fmt.Errorf("removing mapping %s/%s->%s: %w", source, sourceID, target, err)
	}
	return nil
}

// IsMirror reports whether the event with id in calendar was created by the
// engine.
func (s *SQLiteStore) IsMirror(ctx context.Context, id string, calendar model.CalendarID) (bool, error) {
	const q = `SELECT COUNT(*) FROM mappings WHERE target = ? AND target_id = ?`
	var count int
	if err := s.db.QueryRowContext(ctx, q, string(calendar), id).Scan(&count); err != nil {
		return false, fmt.Errorf("checking mirror %s in %s: %w", id, calendar, err)
	}
	return count > 0, nil
}

// MirrorIDs returns the set of engine-created event ids in calendar.
func (s *SQLiteStore) MirrorIDs(ctx context.Context, calendar model.CalendarID) (map[string]struct{}, error) {
	const q = `SELECT target_id FROM mappings WHERE target = ?`
	rows, err := s.db.QueryContext(ctx, q, string(calendar))
	if err != nil {
		return nil, fmt.Errorf("querying mirror ids for %s: %w", calendar, err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning mirror id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Count returns the number of mapping rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mappings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting mappings: %w", err)
	}
	return count, nil
}

// scanner matches both *sql.Row and *sql.Rows so scanMapping can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(s scanner) (*Mapping, error) {
	var m Mapping
	var source, target, syncedAt string

	err := s.Scan(&m.SourceID, &source, &target, &m.TargetID, &syncedAt, &m.SourceUpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning mapping row: %w", err)
	}

	m.Source = model.CalendarID(source)
	m.Target = model.CalendarID(target)
	m.LastSyncedAt = parseTime(syncedAt)
	return &m, nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/njoerd114/calmirror/internal/model"
)

// DefaultFilePath is the mapping file used when the config does not name one.
const DefaultFilePath = "calmirror-mappings.json"

// key is the composite lookup key for a mapping row.
type key struct {
	sourceID string
	source   model.CalendarID
	target   model.CalendarID
}

// FileStore is the JSON-file-backed mapping store. The whole document is
// rewritten on every mutating call, so a crash mid-run leaves the file
// reflecting exactly the writes completed so far.
//
// The in-memory map is authoritative: a failed flush is logged and the
// current operation still succeeds, accepting a narrow at-most-once
// durability loss on crash.
type FileStore struct {
	path string
	log  *slog.Logger

	mu   sync.Mutex
	rows map[key]Mapping
}

// OpenFile loads the mapping file at path. A missing or corrupt file resets
// to an empty store rather than failing: re-creating mirrors is idempotent,
// refusing to run is not.
func OpenFile(path string, logger *slog.Logger) *FileStore {
	s := &FileStore{path: path, log: logger, rows: make(map[key]Mapping)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("mapping file unreadable, starting with empty store", "path", path, "error", err)
		}
		return s
	}

	var records []mappingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		logger.Warn("mapping file corrupt, starting with empty store", "path", path, "error", err)
		return s
	}

	for _, r := range records {
		m := Mapping{
			SourceID:        r.SourceID,
			Source:          model.CalendarID(r.Source),
			TargetID:        r.TargetID,
			Target:          model.CalendarID(r.Target),
			LastSyncedAt:    parseTime(r.LastSyncedAt),
			SourceUpdatedAt: r.SourceUpdatedAt,
		}
		s.rows[key{m.SourceID, m.Source, m.Target}] = m
	}

	logger.Debug("mapping file loaded", "path", path, "rows", len(s.rows))
	return s
}

// Find returns the mapping for the composite key, or (nil, nil) when the
// event was never synced to this target.
func (s *FileStore) Find(_ context.Context, sourceID string, source, target model.CalendarID) (*Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.rows[key{sourceID, source, target}]
	if !ok {
		return nil, nil
	}
	cp := m
	return &cp, nil
}

// ListByEdge returns all rows for one directed (source, target) edge.
func (s *FileStore) ListByEdge(_ context.Context, source, target model.CalendarID) ([]Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Mapping
	for k, m := range s.rows {
		if k.source == source && k.target == target {
			out = append(out, m)
		}
	}
	return out, nil
}

// Upsert inserts or replaces the row for m's composite key and persists the
// whole document immediately.
func (s *FileStore) Upsert(_ context.Context, m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[key{m.SourceID, m.Source, m.Target}] = m
	s.flushLocked()
	return nil
}

// Remove deletes the row for the composite key and persists immediately.
// Removing an absent key is a no-op.
func (s *FileStore) Remove(_ context.Context, sourceID string, source, target model.CalendarID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, key{sourceID, source, target})
	s.flushLocked()
	return nil
}

// IsMirror reports whether the event with id in calendar was created by the
// engine (i.e. appears as the target side of some mapping row).
func (s *FileStore) IsMirror(_ context.Context, id string, calendar model.CalendarID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.rows {
		if m.Target == calendar && m.TargetID == id {
			return true, nil
		}
	}
	return false, nil
}

// MirrorIDs returns the set of engine-created event ids in calendar.
func (s *FileStore) MirrorIDs(_ context.Context, calendar model.CalendarID) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{})
	for _, m := range s.rows {
		if m.Target == calendar {
			ids[m.TargetID] = struct{}{}
		}
	}
	return ids, nil
}

// Count returns the number of mapping rows.
func (s *FileStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows), nil
}

// Close flushes the store one final time.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
	return nil
}

// flushLocked rewrites the mapping file from the in-memory rows. Failures are
// logged, not returned: the in-memory store stays authoritative until the
// next successful flush. Callers must hold s.mu.
func (s *FileStore) flushLocked() {
	records := make([]mappingRecord, 0, len(s.rows))
	for _, m := range s.rows {
		records = append(records, mappingRecord{
			SourceID:        m.SourceID,
			Source:          string(m.Source),
			TargetID:        m.TargetID,
			Target:          string(m.Target),
			LastSyncedAt:    formatTime(m.LastSyncedAt),
			SourceUpdatedAt: m.SourceUpdatedAt,
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		s.log.Error("encoding mapping file", "error", err)
		return
	}

	// Write-then-rename so a crash never leaves a half-written document.
	tmp := s.path + ".tmp"
	if err := writeFile(tmp, data); err != nil {
		s.log.Error("writing mapping file", "path", s.path, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Error("replacing mapping file", "path", s.path, "error", err)
	}
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating mapping directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

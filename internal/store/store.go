// Package store persists the cross-calendar identity mappings that survive
// between sync runs. A mapping is a directed edge: it records that the event
// with SourceID in calendar Source has a mirror with TargetID in calendar
// Target. The same origin event has up to two independent rows, one per other
// calendar, and each row evolves independently.
//
// Two backends implement the same contract: [FileStore] keeps a single JSON
// document rewritten in full on every mutation, [SQLiteStore] keeps a table
// with a composite primary key. Other packages receive one of them through
// the sync package's MappingStore interface.
package store

import (
	"time"

	"github.com/njoerd114/calmirror/internal/model"
)

// Mapping is one persistent row of cross-run state, keyed by
// (SourceID, Source, Target).
type Mapping struct {
	// SourceID is the event's identifier in its origin calendar.
	SourceID string

	// Source is the origin calendar.
	Source model.CalendarID

	// TargetID is the identifier the target backend assigned when the mirror
	// was created. Used for later update and delete calls.
	TargetID string

	// Target is the calendar holding the mirror.
	Target model.CalendarID

	// LastSyncedAt is when the engine last successfully wrote the mirror.
	LastSyncedAt time.Time

	// SourceUpdatedAt is a copy of the source event's opaque modification
	// token at the time of the last sync. Empty when the origin exposes no
	// modification time, which disables change detection for the row.
	SourceUpdatedAt string
}

// mappingRecord is the JSON wire form of a [Mapping] in the file backend.
type mappingRecord struct {
	SourceID        string `json:"sourceId"`
	Source          string `json:"source"`
	TargetID        string `json:"targetId"`
	Target          string `json:"target"`
	LastSyncedAt    string `json:"lastSyncedAt"`
	SourceUpdatedAt string `json:"sourceUpdatedAt,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

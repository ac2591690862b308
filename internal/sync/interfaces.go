// Package sync implements the reconciliation engine that mirrors events
// across the registered calendars. Each run is one atomic logical pass over
// three phases — fetch, pairwise propagation, cleanup — with all durable
// state held in the mapping store, so a run is safe to interrupt and resume.
//
// The package contains two main components:
//
//   - [Reconciler] performs a single pass and returns a [Result].
//   - [Engine] wraps the reconciler with telemetry and the non-overlapping
//     cron schedule used in daemon mode.
package sync

import (
	"context"
	"time"

	"github.com/njoerd114/calmirror/internal/model"
	"github.com/njoerd114/calmirror/internal/store"
)

// Calendar is the capability interface every backend integration exposes to
// the engine. Implemented by [dooray.Adapter], [googlecal.Adapter], and
// [caldav.Adapter].
//
// Create must return a stable identifier usable for later Update and Delete
// calls. Fetch must set Source on every returned event to the identity of
// the adapter that produced it. When visibility is private, Create and
// Update must apply the redaction contract ([model.Redact] plus the
// backend's native confidential primitive).
type Calendar interface {
	Fetch(ctx context.Context, from, to time.Time) ([]model.Event, error)
	Create(ctx context.Context, ev model.Event, vis model.Visibility) (string, error)
	Update(ctx context.Context, targetID string, ev model.Event, vis model.Visibility) error
	Delete(ctx context.Context, targetID string) error
}

// MappingStore provides access to the durable cross-calendar identity rows.
// Implemented by [store.FileStore] and [store.SQLiteStore].
type MappingStore interface {
	Find(ctx context.Context, sourceID string, source, target model.CalendarID) (*store.Mapping, error)
	ListByEdge(ctx context.Context, source, target model.CalendarID) ([]store.Mapping, error)
	Upsert(ctx context.Context, m store.Mapping) error
	Remove(ctx context.Context, sourceID string, source, target model.CalendarID) error
	IsMirror(ctx context.Context, id string, calendar model.CalendarID) (bool, error)
	MirrorIDs(ctx context.Context, calendar model.CalendarID) (map[string]struct{}, error)
	Count(ctx context.Context) (int, error)
}

// Package model defines shared types used across the sync engine and the
// calendar adapters.
package model

import "time"

// CalendarID identifies one of the registered calendars. Values come from the
// config file (e.g. "dooray", "google", "icloud").
type CalendarID string

// Visibility controls how a mirrored event appears in a target calendar.
type Visibility string

const (
	// VisibilityPublic mirrors the event with all fields intact.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate mirrors the event as a content-hidden busy block.
	VisibilityPrivate Visibility = "private"
)

// Event is the normalised, calendar-agnostic representation of a calendar
// event shared between the adapters and the sync engine.
type Event struct {
	// SourceID is the identifier assigned by the origin calendar. Opaque;
	// its format is backend-defined (REST-issued id or CalDAV UID).
	SourceID string

	// Source is the calendar the event was fetched from. Always set by the
	// adapter that produced the event.
	Source CalendarID

	// Title is the event summary.
	Title string

	// Description and Location are free text. Both are replaced or dropped
	// when the event is mirrored with private visibility.
	Description string
	Location    string

	// Start and End bound the event. For all-day events only the date
	// component is meaningful; adapters encode it date-only on the wire.
	Start time.Time
	End   time.Time

	// AllDay selects date-only vs date-time encoding at the adapters.
	AllDay bool

	// Visibility is computed by the engine from Source on every propagation.
	// Adapters never set it on fetched events and the engine never trusts it.
	Visibility Visibility

	// UpdatedAt is the origin-side last-modification token. It is opaque:
	// compared only for inequality, never parsed or ordered. Empty means the
	// origin does not expose modification time, which disables change
	// detection for this event.
	UpdatedAt string

	// Recurrence is a single recurrence rule string, passed through verbatim.
	Recurrence string
}

// redactionNotice replaces the description of privately mirrored events.
const redactionNotice = "Synced from another calendar. Details hidden."

// busyTitlePrefix marks privately mirrored events as placeholders.
const busyTitlePrefix = "[Busy] "

// Redact returns a copy of e with descriptive content removed for a private
// mirror: the title is prefixed with the busy marker, the description is
// replaced with a fixed notice, and the location is dropped. Adapters call
// this before encoding a private event and additionally set their backend's
// native confidential primitive.
func Redact(e Event) Event {
	e.Title = busyTitlePrefix + e.Title
	e.Description = redactionNotice
	e.Location = ""
	return e
}

// validityFloor rejects zero and pre-2000 timestamps, which upstream backends
// are known to emit for malformed events.
var validityFloor = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ValidStart reports whether t is a usable event start time. Adapters skip
// fetched events that fail this check.
func ValidStart(t time.Time) bool {
	return !t.IsZero() && !t.Before(validityFloor)
}

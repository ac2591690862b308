package sync

import "github.com/njoerd114/calmirror/internal/model"

// Policy is the single rule governing downstream redaction: events from the
// workplace calendar mirror as public, events from every other calendar
// mirror as private. It is evaluated per propagation and never cached on an
// event, so a visibility value carried by a fetched event is always
// overwritten.
type Policy struct {
	// Workplace is the calendar whose events mirror fully visible.
	Workplace model.CalendarID
}

// Visibility returns the visibility to apply when mirroring events that
// originate in source.
func (p Policy) Visibility(source model.CalendarID) model.Visibility {
	if source == p.Workplace {
		return model.VisibilityPublic
	}
	return model.VisibilityPrivate
}

package caldav

import (
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/njoerd114/calmirror/internal/model"
)

const (
	propClass        = ical.ComponentProperty("CLASS")
	propTransp       = ical.ComponentProperty("TRANSP")
	propLastModified = ical.ComponentProperty("LAST-MODIFIED")
	propRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")
)

// eventsFromICal parses one calendar-data payload into normalized events.
// A payload can carry several VEVENTs when a recurring event has overridden
// instances; the overrides (RECURRENCE-ID) are skipped, only masters mirror.
func eventsFromICal(data string) ([]model.Event, error) {
	cal, err := ical.ParseCalendar(strings.NewReader(data))
	if err != nil {
		return nil, err
	}

	var events []model.Event
	for _, ve := range cal.Events() {
		if ve.GetProperty(propRecurrenceID) != nil {
			continue
		}
		ev, err := eventFromVEvent(ve)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func eventFromVEvent(ve *ical.VEvent) (model.Event, error) {
	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return model.Event{}, errors.New("missing UID")
	}

	ev := model.Event{
		SourceID: uidProp.Value,
		Source:   ID,
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.Recurrence = p.Value
	}
	// LAST-MODIFIED is the change-detection token; many servers omit it, in
	// which case edits to this event are never re-propagated.
	if p := ve.GetProperty(propLastModified); p != nil {
		ev.UpdatedAt = p.Value
	}

	ev.AllDay = isAllDay(ve)

	start, err := ve.GetStartAt()
	if err != nil {
		if start, err = ve.GetAllDayStartAt(); err != nil {
			return model.Event{}, err
		}
	}
	end, err := ve.GetEndAt()
	if err != nil {
		if end, err = ve.GetAllDayEndAt(); err != nil {
			end = start
		}
	}

	ev.Start = start
	ev.End = end
	return ev, nil
}

// isAllDay reports whether DTSTART carries a date-only value, either via the
// VALUE=DATE parameter or a value with no time component.
func isAllDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

// buildICal serializes one event as a VCALENDAR payload for PUT. For private
// visibility the event is redacted and classed PRIVATE; mirrors are always
// TRANSP:OPAQUE so they block the time either way.
func buildICal(uid string, ev model.Event, vis model.Visibility) string {
	class := "PUBLIC"
	if vis == model.VisibilityPrivate {
		ev = model.Redact(ev)
		class = "PRIVATE"
	}

	cal := ical.NewCalendar()
	cal.SetProductId("-//calmirror//EN")

	e := cal.AddEvent(uid)
	e.SetDtStampTime(time.Now().UTC())
	e.SetSummary(ev.Title)
	if ev.Description != "" {
		e.SetDescription(ev.Description)
	}
	if ev.Location != "" {
		e.SetLocation(ev.Location)
	}

	if ev.AllDay {
		e.SetAllDayStartAt(ev.Start)
		e.SetAllDayEndAt(ev.End)
	} else {
		e.SetStartAt(ev.Start.UTC())
		e.SetEndAt(ev.End.UTC())
	}

	e.SetProperty(propClass, class)
	e.SetProperty(propTransp, "OPAQUE")

	if ev.Recurrence != "" {
		e.SetProperty(ical.ComponentPropertyRrule, ev.Recurrence)
	}

	return cal.Serialize()
}

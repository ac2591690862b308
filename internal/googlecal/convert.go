package googlecal

import (
	"fmt"
	"strings"
	"time"

	"github.com/njoerd114/calmirror/internal/model"
)

const dateLayout = "2006-01-02"

// googleEvent is the JSON structure of a single event on the Calendar v3 wire.
type googleEvent struct {
	ID          string `json:"id,omitempty"`
	Status      string `json:"status,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	Start eventTime `json:"start"`
	End   eventTime `json:"end"`

	// Visibility is Google's native primitive: "default" for public mirrors,
	// "private" for redacted ones.
	Visibility string `json:"visibility,omitempty"`

	// Transparency "opaque" keeps mirrors counting as busy in free/busy.
	Transparency string `json:"transparency,omitempty"`

	// Recurrence holds RRULE/EXRULE/RDATE lines; only the first RRULE is
	// carried through, verbatim.
	Recurrence []string `json:"recurrence,omitempty"`

	// Updated is Google's last-modification stamp, used only as an opaque
	// change-detection token.
	Updated string `json:"updated,omitempty"`
}

// eventTime is Google's date-or-datetime union: exactly one of Date and
// DateTime is set.
type eventTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
}

// eventsPage is one page of the events.list response.
type eventsPage struct {
	Items         []googleEvent `json:"items"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

// eventFromWire converts a Google event to a [model.Event].
func eventFromWire(w googleEvent) (model.Event, error) {
	start, allDay, err := parseEventTime(w.Start)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing start: %w", err)
	}
	end, _, err := parseEventTime(w.End)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing end: %w", err)
	}

	return model.Event{
		SourceID:    w.ID,
		Source:      ID,
		Title:       w.Summary,
		Description: w.Description,
		Location:    w.Location,
		Start:       start,
		End:         end,
		AllDay:      allDay,
		UpdatedAt:   w.Updated,
		Recurrence:  firstRRule(w.Recurrence),
	}, nil
}

// buildEventBody returns the wire payload for insert and update calls. For
// private visibility the event is redacted and Google's private visibility is
// set; mirrors are always opaque so they count as busy either way.
func buildEventBody(ev model.Event, vis model.Visibility) googleEvent {
	visibility := "default"
	if vis == model.VisibilityPrivate {
		ev = model.Redact(ev)
		visibility = "private"
	}

	w := googleEvent{
		Summary:      ev.Title,
		Description:  ev.Description,
		Location:     ev.Location,
		Start:        formatEventTime(ev.Start, ev.AllDay),
		End:          formatEventTime(ev.End, ev.AllDay),
		Visibility:   visibility,
		Transparency: "opaque",
	}
	if ev.Recurrence != "" {
		w.Recurrence = []string{"RRULE:" + ev.Recurrence}
	}
	return w
}

func parseEventTime(et eventTime) (t time.Time, allDay bool, err error) {
	if et.Date != "" {
		t, err = time.Parse(dateLayout, et.Date)
		return t, true, err
	}
	t, err = time.Parse(time.RFC3339, et.DateTime)
	return t, false, err
}

func formatEventTime(t time.Time, allDay bool) eventTime {
	if allDay {
		return eventTime{Date: t.Format(dateLayout)}
	}
	return eventTime{DateTime: t.Format(time.RFC3339)}
}

// firstRRule returns the rule value of the first RRULE line in a recurrence
// set, without the "RRULE:" prefix so it matches what the other backends
// carry. Other lines (EXDATE, RDATE) are not mirrored.
func firstRRule(lines []string) string {
	for _, l := range lines {
		if strings.HasPrefix(l, "RRULE:") {
			return strings.TrimPrefix(l, "RRULE:")
		}
	}
	return ""
}

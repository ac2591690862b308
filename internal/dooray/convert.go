package dooray

import (
	"fmt"
	"time"

	"github.com/njoerd114/calmirror/internal/model"
)

const dateLayout = "2006-01-02"

// doorayEvent is the JSON structure of a single calendar event on the Dooray
// wire.
type doorayEvent struct {
	ID      string     `json:"id,omitempty"`
	Subject string     `json:"subject"`
	Body    *eventBody `json:"body,omitempty"`

	Location string `json:"location,omitempty"`

	// StartedAt and EndedAt are RFC 3339 date-times, or bare dates when
	// WholeDayFlag is set.
	StartedAt string `json:"startedAt"`
	EndedAt   string `json:"endedAt"`

	WholeDayFlag bool `json:"wholeDayFlag"`

	// SecretFlag is Dooray's confidential primitive: other members see only
	// a busy block.
	SecretFlag bool `json:"secretFlag,omitempty"`

	RecurrenceRule string `json:"recurrenceRule,omitempty"`

	// UpdatedAt is Dooray's last-modification stamp, used only as an opaque
	// change-detection token.
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type eventBody struct {
	MimeType string `json:"mimeType"`
	Content  string `json:"content"`
}

// eventFromWire converts a Dooray event to a [model.Event].
func eventFromWire(w doorayEvent) (model.Event, error) {
	start, err := parseStamp(w.StartedAt, w.WholeDayFlag)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing startedAt %q: %w", w.StartedAt, err)
	}
	end, err := parseStamp(w.EndedAt, w.WholeDayFlag)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing endedAt %q: %w", w.EndedAt, err)
	}

	ev := model.Event{
		SourceID:   w.ID,
		Source:     ID,
		Title:      w.Subject,
		Location:   w.Location,
		Start:      start,
		End:        end,
		AllDay:     w.WholeDayFlag,
		UpdatedAt:  w.UpdatedAt,
		Recurrence: w.RecurrenceRule,
	}
	if w.Body != nil {
		ev.Description = w.Body.Content
	}
	return ev, nil
}

// buildEventBody returns the wire payload for create and update calls. For
// private visibility the event is redacted and Dooray's secret flag is set.
func buildEventBody(ev model.Event, vis model.Visibility) doorayEvent {
	if vis == model.VisibilityPrivate {
		ev = model.Redact(ev)
	}

	w := doorayEvent{
		Subject:        ev.Title,
		Location:       ev.Location,
		StartedAt:      formatStamp(ev.Start, ev.AllDay),
		EndedAt:        formatStamp(ev.End, ev.AllDay),
		WholeDayFlag:   ev.AllDay,
		SecretFlag:     vis == model.VisibilityPrivate,
		RecurrenceRule: ev.Recurrence,
	}
	if ev.Description != "" {
		w.Body = &eventBody{MimeType: "text/x-markdown", Content: ev.Description}
	}
	return w
}

// parseStamp parses a Dooray timestamp: a bare date for whole-day events,
// RFC 3339 otherwise. Whole-day markers sometimes arrive as full date-times,
// so both forms are accepted either way.
func parseStamp(s string, wholeDay bool) (time.Time, error) {
	if wholeDay {
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(dateLayout, s)
}

func formatStamp(t time.Time, wholeDay bool) string {
	if wholeDay {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339)
}

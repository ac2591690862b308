package caldav

import (
	"strings"
	"testing"
	"time"

	"github.com/njoerd114/calmirror/internal/model"
)

// rawCalendar joins iCal lines with the CRLF endings the wire format requires.
func rawCalendar(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

func TestEventsFromICal(t *testing.T) {
	data := rawCalendar(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Apple Inc.//iCloud//EN",
		"BEGIN:VEVENT",
		"UID:abc-123@icloud.com",
		"SUMMARY:Yoga",
		"DESCRIPTION:bring the mat",
		"LOCATION:Studio 9",
		"DTSTART:20260903T180000Z",
		"DTEND:20260903T190000Z",
		"RRULE:FREQ=WEEKLY;BYDAY=WE",
		"LAST-MODIFIED:20260901T060000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	events, err := eventsFromICal(data)
	if err != nil {
		t.Fatalf("eventsFromICal: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}

	ev := events[0]
	if ev.SourceID != "abc-123@icloud.com" || ev.Source != ID {
		t.Errorf("identity = %q/%q", ev.SourceID, ev.Source)
	}
	if ev.Title != "Yoga" || ev.Description != "bring the mat" || ev.Location != "Studio 9" {
		t.Errorf("content = %q/%q/%q", ev.Title, ev.Description, ev.Location)
	}
	if ev.AllDay {
		t.Error("AllDay = true for timed event")
	}
	if want := time.Date(2026, 9, 3, 18, 0, 0, 0, time.UTC); !ev.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", ev.Start, want)
	}
	if ev.Recurrence != "FREQ=WEEKLY;BYDAY=WE" {
		t.Errorf("Recurrence = %q", ev.Recurrence)
	}
	if ev.UpdatedAt != "20260901T060000Z" {
		t.Errorf("UpdatedAt = %q, want raw LAST-MODIFIED value", ev.UpdatedAt)
	}
}

func TestEventsFromICal_SkipsRecurrenceOverrides(t *testing.T) {
	// A recurring event with one overridden instance: only the master mirrors.
	data := rawCalendar(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"BEGIN:VEVENT",
		"UID:rec-1@icloud.com",
		"SUMMARY:Weekly call",
		"DTSTART:20260903T100000Z",
		"DTEND:20260903T110000Z",
		"RRULE:FREQ=WEEKLY",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:rec-1@icloud.com",
		"RECURRENCE-ID:20260910T100000Z",
		"SUMMARY:Weekly call (moved)",
		"DTSTART:20260910T140000Z",
		"DTEND:20260910T150000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	events, err := eventsFromICal(data)
	if err != nil {
		t.Fatalf("eventsFromICal: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 (override skipped)", len(events))
	}
	if events[0].Title != "Weekly call" {
		t.Errorf("Title = %q, want the master event", events[0].Title)
	}
}

func TestEventsFromICal_AllDay(t *testing.T) {
	data := rawCalendar(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"BEGIN:VEVENT",
		"UID:day-1@icloud.com",
		"SUMMARY:Holiday",
		"DTSTART;VALUE=DATE:20260910",
		"DTEND;VALUE=DATE:20260911",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	events, err := eventsFromICal(data)
	if err != nil {
		t.Fatalf("eventsFromICal: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if !events[0].AllDay {
		t.Error("AllDay = false for VALUE=DATE event")
	}
}

func TestEventsFromICal_Garbage(t *testing.T) {
	if _, err := eventsFromICal("this is not a calendar"); err == nil {
		t.Fatal("want error for unparseable payload")
	}
}

func TestBuildICal_Public(t *testing.T) {
	ev := model.Event{
		Title:       "Planning",
		Description: "sprint goals",
		Location:    "Room 1",
		Start:       time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 9, 3, 11, 0, 0, 0, time.UTC),
		Recurrence:  "FREQ=WEEKLY",
	}

	out := buildICal("uid-1@calmirror", ev, model.VisibilityPublic)
	for _, want := range []string{
		"UID:uid-1@calmirror",
		"SUMMARY:Planning",
		"DESCRIPTION:sprint goals",
		"LOCATION:Room 1",
		"CLASS:PUBLIC",
		"TRANSP:OPAQUE",
		"RRULE:FREQ=WEEKLY",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("serialized payload missing %q:\n%s", want, out)
		}
	}
}

func TestBuildICal_PrivateRedacts(t *testing.T) {
	ev := model.Event{
		Title:       "Dentist",
		Description: "root canal consultation",
		Location:    "Elm Street 12",
		Start:       time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 9, 3, 11, 0, 0, 0, time.UTC),
	}

	out := buildICal("uid-2@calmirror", ev, model.VisibilityPrivate)
	if !strings.Contains(out, "CLASS:PRIVATE") {
		t.Errorf("payload missing CLASS:PRIVATE:\n%s", out)
	}
	if !strings.Contains(out, "TRANSP:OPAQUE") {
		t.Errorf("payload missing TRANSP:OPAQUE:\n%s", out)
	}
	if !strings.Contains(out, "SUMMARY:[Busy] Dentist") {
		t.Errorf("payload missing redacted summary:\n%s", out)
	}
	if strings.Contains(out, "root canal") {
		t.Errorf("payload leaks original description:\n%s", out)
	}
	if strings.Contains(out, "Elm Street") {
		t.Errorf("payload leaks original location:\n%s", out)
	}
}

func TestBuildICal_RoundTrip(t *testing.T) {
	ev := model.Event{
		Title:  "Holiday",
		Start:  time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2026, 9, 11, 0, 0, 0, 0, time.UTC),
		AllDay: true,
	}

	out := buildICal("uid-3@calmirror", ev, model.VisibilityPublic)
	parsed, err := eventsFromICal(out)
	if err != nil {
		t.Fatalf("parsing own output: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("events = %d, want 1", len(parsed))
	}
	got := parsed[0]
	if got.SourceID != "uid-3@calmirror" {
		t.Errorf("SourceID = %q", got.SourceID)
	}
	if got.Title != "Holiday" {
		t.Errorf("Title = %q", got.Title)
	}
	if !got.AllDay {
		t.Error("AllDay lost in round trip")
	}
}

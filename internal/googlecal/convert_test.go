package googlecal

import (
	"strings"
	"testing"
	"time"

	"github.com/njoerd114/calmirror/internal/model"
)

func TestEventFromWire(t *testing.T) {
	w := googleEvent{
		ID:          "gcal-evt-1",
		Summary:     "Standup",
		Description: "daily check-in",
		Location:    "Meet",
		Start:       eventTime{DateTime: "2026-09-03T09:30:00+02:00"},
		End:         eventTime{DateTime: "2026-09-03T09:45:00+02:00"},
		Recurrence:  []string{"EXDATE;TZID=Europe/Berlin:20260910T093000", "RRULE:FREQ=DAILY;BYDAY=MO,TU,WE,TH,FR"},
		Updated:     "2026-09-01T07:00:00.123Z",
	}

	ev, err := eventFromWire(w)
	if err != nil {
		t.Fatalf("eventFromWire: %v", err)
	}
	if ev.SourceID != "gcal-evt-1" || ev.Source != ID {
		t.Errorf("identity = %q/%q", ev.SourceID, ev.Source)
	}
	if ev.AllDay {
		t.Error("AllDay = true for timed event")
	}
	want := time.Date(2026, 9, 3, 9, 30, 0, 0, time.FixedZone("", 2*3600))
	if !ev.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", ev.Start, want)
	}
	// The rule value is carried without the RRULE: prefix, matching the other
	// backends; EXDATE lines are not mirrored.
	if ev.Recurrence != "FREQ=DAILY;BYDAY=MO,TU,WE,TH,FR" {
		t.Errorf("Recurrence = %q", ev.Recurrence)
	}
	if ev.UpdatedAt != "2026-09-01T07:00:00.123Z" {
		t.Errorf("UpdatedAt = %q", ev.UpdatedAt)
	}
}

func TestEventFromWire_AllDay(t *testing.T) {
	w := googleEvent{
		ID:    "gcal-evt-2",
		Start: eventTime{Date: "2026-09-10"},
		End:   eventTime{Date: "2026-09-11"},
	}

	ev, err := eventFromWire(w)
	if err != nil {
		t.Fatalf("eventFromWire: %v", err)
	}
	if !ev.AllDay {
		t.Error("AllDay = false for date-only event")
	}
	if want := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC); !ev.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", ev.Start, want)
	}
}

func TestEventFromWire_BadTime(t *testing.T) {
	w := googleEvent{ID: "x", Start: eventTime{DateTime: "garbage"}}
	if _, err := eventFromWire(w); err == nil {
		t.Fatal("want error for unparseable start")
	}
}

func TestBuildEventBody_Public(t *testing.T) {
	ev := model.Event{
		Title:       "Planning",
		Description: "sprint goals",
		Location:    "Room 1",
		Start:       time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 9, 3, 11, 0, 0, 0, time.UTC),
		Recurrence:  "FREQ=WEEKLY",
	}

	w := buildEventBody(ev, model.VisibilityPublic)
	if w.Summary != "Planning" || w.Description != "sprint goals" || w.Location != "Room 1" {
		t.Errorf("public payload mutated content: %+v", w)
	}
	if w.Visibility != "default" {
		t.Errorf("Visibility = %q, want default", w.Visibility)
	}
	if w.Transparency != "opaque" {
		t.Errorf("Transparency = %q — mirrors must always block time", w.Transparency)
	}
	if len(w.Recurrence) != 1 || w.Recurrence[0] != "RRULE:FREQ=WEEKLY" {
		t.Errorf("Recurrence = %v, want single prefixed RRULE line", w.Recurrence)
	}
	if w.Start.DateTime != "2026-09-03T10:00:00Z" || w.Start.Date != "" {
		t.Errorf("Start = %+v", w.Start)
	}
}

func TestBuildEventBody_PrivateRedacts(t *testing.T) {
	ev := model.Event{
		Title:       "Dentist",
		Description: "root canal consultation",
		Location:    "Elm Street 12",
		Start:       time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 9, 3, 11, 0, 0, 0, time.UTC),
	}

	w := buildEventBody(ev, model.VisibilityPrivate)
	if w.Visibility != "private" {
		t.Errorf("Visibility = %q, want private", w.Visibility)
	}
	if w.Transparency != "opaque" {
		t.Errorf("Transparency = %q, want opaque", w.Transparency)
	}
	if !strings.HasPrefix(w.Summary, "[Busy] ") {
		t.Errorf("Summary = %q, want busy prefix", w.Summary)
	}
	if strings.Contains(w.Description, "root canal") {
		t.Errorf("Description leaks original: %q", w.Description)
	}
	if w.Location != "" {
		t.Errorf("Location = %q, want dropped", w.Location)
	}
}

func TestBuildEventBody_AllDayUsesDateOnly(t *testing.T) {
	ev := model.Event{
		Title:  "Holiday",
		Start:  time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2026, 9, 11, 0, 0, 0, 0, time.UTC),
		AllDay: true,
	}

	w := buildEventBody(ev, model.VisibilityPublic)
	if w.Start.Date != "2026-09-10" || w.Start.DateTime != "" {
		t.Errorf("Start = %+v, want date-only", w.Start)
	}
	if w.End.Date != "2026-09-11" {
		t.Errorf("End = %+v, want date-only", w.End)
	}
}

func TestFirstRRule(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
		want  string
	}{
		{"empty", nil, ""},
		{"only rrule", []string{"RRULE:FREQ=DAILY"}, "FREQ=DAILY"},
		{"mixed lines", []string{"RDATE:20260910", "RRULE:FREQ=WEEKLY", "RRULE:FREQ=DAILY"}, "FREQ=WEEKLY"},
		{"no rrule", []string{"EXDATE:20260910"}, ""},
	}
	for _, tc := range cases {
		if got := firstRRule(tc.lines); got != tc.want {
			t.Errorf("%s: firstRRule = %q, want %q", tc.name, got, tc.want)
		}
	}
}

package model

import (
	"strings"
	"testing"
	"time"
)

func TestRedact(t *testing.T) {
	original := Event{
		SourceID:    "evt-1",
		Title:       "Therapy",
		Description: "Dr. Miller, bring the referral letter",
		Location:    "Elm Street 12",
		Start:       time.Date(2026, 9, 2, 14, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 9, 2, 15, 0, 0, 0, time.UTC),
	}

	got := Redact(original)

	if !strings.HasPrefix(got.Title, "[Busy] ") {
		t.Errorf("redacted title = %q, want busy prefix", got.Title)
	}
	if strings.Contains(got.Description, original.Description) {
		t.Errorf("redacted description leaks original: %q", got.Description)
	}
	if got.Location != "" {
		t.Errorf("redacted location = %q, want empty", got.Location)
	}

	// Scheduling fields must survive so the busy block lands at the right time.
	if !got.Start.Equal(original.Start) || !got.End.Equal(original.End) {
		t.Errorf("redaction changed times: %v–%v", got.Start, got.End)
	}
	if got.SourceID != original.SourceID {
		t.Errorf("redaction changed source id: %q", got.SourceID)
	}

	// Redact returns a copy; the input stays intact.
	if original.Location != "Elm Street 12" {
		t.Error("Redact mutated its input")
	}
}

func TestValidStart(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		want  bool
	}{
		{"zero time", time.Time{}, false},
		{"epoch", time.Unix(0, 0).UTC(), false},
		{"1999", time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC), false},
		{"floor exactly", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"modern", time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		if got := ValidStart(tc.start); got != tc.want {
			t.Errorf("%s: ValidStart(%v) = %v, want %v", tc.name, tc.start, got, tc.want)
		}
	}
}

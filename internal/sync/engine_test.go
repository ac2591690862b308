package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/njoerd114/calmirror/internal/model"
)

func TestEngine_RunOnce(t *testing.T) {
	work := newMockCalendar(calWork, newEvent("evt-1", "Team sync", "v1"))
	p1 := newMockCalendar(calP1)
	r := newTestReconciler(t, map[model.CalendarID]Calendar{calWork: work, calP1: p1}, newMockStore())

	e := NewEngine(r, testLogger)
	res := e.RunOnce(context.Background())
	if res.Created != 1 {
		t.Errorf("created = %d, want 1", res.Created)
	}
}

func TestEngine_Run_InvalidSchedule(t *testing.T) {
	work := newMockCalendar(calWork)
	p1 := newMockCalendar(calP1)
	r := newTestReconciler(t, map[model.CalendarID]Calendar{calWork: work, calP1: p1}, newMockStore())

	e := NewEngine(r, testLogger)
	if err := e.Run(context.Background(), "not a cron expression"); err == nil {
		t.Fatal("want error for invalid schedule")
	}
}

func TestEngine_Run_StopsOnCancel(t *testing.T) {
	work := newMockCalendar(calWork, newEvent("evt-1", "Team sync", "v1"))
	p1 := newMockCalendar(calP1)
	r := newTestReconciler(t, map[model.CalendarID]Calendar{calWork: work, calP1: p1}, newMockStore())

	e := NewEngine(r, testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, "@every 1h") }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// The immediate first pass still ran before shutdown.
	if p1.mirrorCount() != 1 {
		t.Errorf("mirrors = %d, want 1 from the immediate pass", p1.mirrorCount())
	}
}

package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/njoerd114/calmirror/internal/model"
	"github.com/njoerd114/calmirror/internal/store"
)

// Window bounds which events are fetched and reconciled per run:
// [now − DaysBack, now + DaysForward].
type Window struct {
	DaysBack    int
	DaysForward int
}

// DefaultWindow is used when the config does not override the sync window.
var DefaultWindow = Window{DaysBack: 7, DaysForward: 90}

// Bounds returns the concrete time range for a run starting at now.
func (w Window) Bounds(now time.Time) (from, to time.Time) {
	return now.AddDate(0, 0, -w.DaysBack), now.AddDate(0, 0, w.DaysForward)
}

// Reconciler performs a single mirror pass across all registered calendars.
// It is stateless between calls — all persistent state lives in the
// [MappingStore].
type Reconciler struct {
	calendars map[model.CalendarID]Calendar
	order     []model.CalendarID // deterministic pair iteration
	policy    Policy
	window    Window
	store     MappingStore
	log       *slog.Logger
}

// NewReconciler creates a Reconciler over the given calendars. At least two
// calendars must be registered and the policy's workplace calendar must be
// one of them; anything less is a configuration error surfaced before any
// pass runs.
func NewReconciler(calendars map[model.CalendarID]Calendar, policy Policy, window Window, st MappingStore, logger *slog.Logger) (*Reconciler, error) {
	if len(calendars) < 2 {
		return nil, fmt.Errorf("%s: need at least two calendars, have %d", ConfigIncomplete, len(calendars))
	}
	if _, ok := calendars[policy.Workplace]; !ok {
		return nil, fmt.Errorf("%s: workplace calendar %q is not registered", ConfigIncomplete, policy.Workplace)
	}

	order := make([]model.CalendarID, 0, len(calendars))
	for id := range calendars {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	return &Reconciler{
		calendars: calendars,
		order:     order,
		policy:    policy,
		window:    window,
		store:     st,
		log:       logger,
	}, nil
}

// Run performs one full pass: fetch every calendar over the window, propagate
// every event across every ordered (source, target) pair, then clean up
// mirrors whose source event disappeared. The pass always completes; all
// per-calendar and per-event failures are recorded in the result.
func (r *Reconciler) Run(ctx context.Context) Result {
	var res Result
	now := time.Now().UTC()
	from, to := r.window.Bounds(now)

	// Fetch phase. A calendar whose fetch fails contributes zero events and
	// is excluded as a source (and as its own deletion baseline) below.
	fetched := make(map[model.CalendarID][]model.Event, len(r.order))
	for _, id := range r.order {
		events, err := r.calendars[id].Fetch(ctx, from, to)
		if err != nil {
			r.log.Error("fetch failed", "calendar", id, "error", err)
			res.record(FetchFailed, "", id, "", err)
			continue
		}
		// Mirrors the engine itself created come back in the fetch like any
		// other event; they must not become sources or the calendars would
		// mirror each other's mirrors forever. If the mirror set is
		// unreadable the calendar is excluded as a source this pass.
		mirrorIDs, err := r.store.MirrorIDs(ctx, id)
		if err != nil {
			res.record(StoreIOFailed, "", id, "", err)
			continue
		}
		own := events[:0]
		for _, ev := range events {
			if _, isMirror := mirrorIDs[ev.SourceID]; isMirror {
				continue
			}
			// The origin tag is the adapter's identity, never trusted from
			// the wire payload.
			ev.Source = id
			own = append(own, ev)
		}
		fetched[id] = own
		r.log.Debug("fetched", "calendar", id, "events", len(own))
	}

	// Propagation phase.
	for _, source := range r.order {
		events, ok := fetched[source]
		if !ok {
			continue
		}
		vis := r.policy.Visibility(source)
		for _, target := range r.order {
			if target == source {
				continue
			}
			for _, ev := range events {
				ev.Visibility = vis
				r.propagate(ctx, ev, target, vis, now, &res)
			}
		}
	}

	// Cleanup phase: for every edge that propagated, delete mirrors whose
	// source event is no longer present in the window.
	for _, source := range r.order {
		events, ok := fetched[source]
		if !ok {
			continue
		}
		present := make(map[string]struct{}, len(events))
		for _, ev := range events {
			present[ev.SourceID] = struct{}{}
		}
		for _, target := range r.order {
			if target == source {
				continue
			}
			r.cleanupEdge(ctx, source, target, present, &res)
		}
	}

	r.log.Info("mirror pass complete",
		"created", res.Created,
		"updated", res.Updated,
		"deleted", res.Deleted,
		"errors", len(res.Errors),
	)
	return res
}

// propagate mirrors one event into one target calendar: create when no
// mapping exists, update when the source's modification token changed,
// otherwise no-op. An event whose origin exposes no modification token is
// created once and never updated afterwards.
func (r *Reconciler) propagate(ctx context.Context, ev model.Event, target model.CalendarID, vis model.Visibility, now time.Time, res *Result) {
	m, err := r.store.Find(ctx, ev.SourceID, ev.Source, target)
	if err != nil {
		res.record(StoreIOFailed, ev.SourceID, ev.Source, target, err)
		return
	}

	cal := r.calendars[target]

	if m == nil {
		targetID, err := cal.Create(ctx, ev, vis)
		if err != nil {
			r.log.Error("create failed", "source", ev.Source, "target", target, "source_id", ev.SourceID, "error", err)
			res.record(RemoteWriteFailed, ev.SourceID, ev.Source, target, err)
			return
		}
		res.Created++
		if err := r.store.Upsert(ctx, store.Mapping{
			SourceID:        ev.SourceID,
			Source:          ev.Source,
			TargetID:        targetID,
			Target:          target,
			LastSyncedAt:    now,
			SourceUpdatedAt: ev.UpdatedAt,
		}); err != nil {
			res.record(StoreIOFailed, ev.SourceID, ev.Source, target, err)
		}
		return
	}

	// Change detection needs a token on both sides; absence of either means
	// the pair is treated as unchanged.
	if ev.UpdatedAt == "" || m.SourceUpdatedAt == "" || ev.UpdatedAt == m.SourceUpdatedAt {
		return
	}

	if err := cal.Update(ctx, m.TargetID, ev, vis); err != nil {
		r.log.Error("update failed", "source", ev.Source, "target", target, "source_id", ev.SourceID, "error", err)
		res.record(RemoteWriteFailed, ev.SourceID, ev.Source, target, err)
		return
	}
	res.Updated++

	m.SourceUpdatedAt = ev.UpdatedAt
	m.LastSyncedAt = now
	if err := r.store.Upsert(ctx, *m); err != nil {
		res.record(StoreIOFailed, ev.SourceID, ev.Source, target, err)
	}
}

// cleanupEdge deletes every mirror on (source, target) whose source id is not
// in present. A failed delete leaves the mapping row intact so the next run
// retries it instead of silently forgetting the mirror.
func (r *Reconciler) cleanupEdge(ctx context.Context, source, target model.CalendarID, present map[string]struct{}, res *Result) {
	rows, err := r.store.ListByEdge(ctx, source, target)
	if err != nil {
		res.record(StoreIOFailed, "", source, target, err)
		return
	}

	cal := r.calendars[target]
	for _, m := range rows {
		if _, ok := present[m.SourceID]; ok {
			continue
		}

		r.log.Info("source event gone, deleting mirror",
			"source", source, "target", target, "source_id", m.SourceID, "target_id", m.TargetID)

		if err := cal.Delete(ctx, m.TargetID); err != nil {
			r.log.Error("delete failed", "source", source, "target", target, "target_id", m.TargetID, "error", err)
			res.record(RemoteWriteFailed, m.SourceID, source, target, err)
			continue
		}
		res.Deleted++

		if err := r.store.Remove(ctx, m.SourceID, source, target); err != nil {
			res.record(StoreIOFailed, m.SourceID, source, target, err)
		}
	}
}

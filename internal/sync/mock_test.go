package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/njoerd114/calmirror/internal/model"
	"github.com/njoerd114/calmirror/internal/store"
)

// --- Mock Calendar -----------------------------------------------------------

// mirror is one event as held by a mock backend, tagged with the visibility
// it was written with so tests can assert the redaction contract.
type mirror struct {
	event model.Event
	vis   model.Visibility
}

type mockCalendar struct {
	mu     sync.Mutex
	id     model.CalendarID
	events []model.Event   // "user-authored" events returned by Fetch
	remote map[string]mirror // engine-created mirrors by target id
	nextID int

	fetchErr     error
	createErrFor map[string]struct{} // source ids whose create fails
	deleteErr    error

	createCalls int
	updateCalls int
	deleteCalls int
}

func newMockCalendar(id model.CalendarID, events ...model.Event) *mockCalendar {
	return &mockCalendar{
		id:           id,
		events:       events,
		remote:       make(map[string]mirror),
		createErrFor: make(map[string]struct{}),
	}
}

// Fetch returns the user-authored events plus every engine-created mirror,
// the way a real backend would: the engine cannot tell them apart from the
// wire payload alone.
func (m *mockCalendar) Fetch(_ context.Context, _, _ time.Time) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]model.Event, len(m.events))
	copy(out, m.events)
	for id, mr := range m.remote {
		ev := mr.event
		ev.SourceID = id
		out = append(out, ev)
	}
	return out, nil
}

func (m *mockCalendar) Create(_ context.Context, ev model.Event, vis model.Visibility) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if _, bad := m.createErrFor[ev.SourceID]; bad {
		return "", fmt.Errorf("backend rejected %q", ev.SourceID)
	}
	if vis == model.VisibilityPrivate {
		ev = model.Redact(ev)
	}
	m.nextID++
	id := fmt.Sprintf("%s-%d", m.id, m.nextID)
	m.remote[id] = mirror{event: ev, vis: vis}
	return id, nil
}

func (m *mockCalendar) Update(_ context.Context, targetID string, ev model.Event, vis model.Visibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if _, ok := m.remote[targetID]; !ok {
		return fmt.Errorf("event %q not found", targetID)
	}
	if vis == model.VisibilityPrivate {
		ev = model.Redact(ev)
	}
	m.remote[targetID] = mirror{event: ev, vis: vis}
	return nil
}

func (m *mockCalendar) Delete(_ context.Context, targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.remote[targetID]; !ok {
		return fmt.Errorf("event %q not found", targetID)
	}
	delete(m.remote, targetID)
	return nil
}

func (m *mockCalendar) setEvents(events ...model.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = events
}

func (m *mockCalendar) mirrors() []mirror {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mirror, 0, len(m.remote))
	for _, mr := range m.remote {
		out = append(out, mr)
	}
	return out
}

func (m *mockCalendar) mirrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.remote)
}

// --- Mock Mapping Store ------------------------------------------------------

type storeKey struct {
	sourceID string
	source   model.CalendarID
	target   model.CalendarID
}

type mockStore struct {
	mu   sync.Mutex
	rows map[storeKey]store.Mapping

	findErr   error
	upsertErr error
}

func newMockStore() *mockStore {
	return &mockStore{rows: make(map[storeKey]store.Mapping)}
}

func (m *mockStore) Find(_ context.Context, sourceID string, source, target model.CalendarID) (*store.Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	row, ok := m.rows[storeKey{sourceID, source, target}]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (m *mockStore) ListByEdge(_ context.Context, source, target model.CalendarID) ([]store.Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Mapping
	for k, row := range m.rows {
		if k.source == source && k.target == target {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockStore) Upsert(_ context.Context, row store.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.rows[storeKey{row.SourceID, row.Source, row.Target}] = row
	return nil
}

func (m *mockStore) Remove(_ context.Context, sourceID string, source, target model.CalendarID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, storeKey{sourceID, source, target})
	return nil
}

func (m *mockStore) IsMirror(_ context.Context, id string, calendar model.CalendarID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Target == calendar && row.TargetID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) MirrorIDs(_ context.Context, calendar model.CalendarID) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[string]struct{})
	for _, row := range m.rows {
		if row.Target == calendar {
			ids[row.TargetID] = struct{}{}
		}
	}
	return ids, nil
}

func (m *mockStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *mockStore) get(sourceID string, source, target model.CalendarID) *store.Mapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[storeKey{sourceID, source, target}]
	if !ok {
		return nil
	}
	cp := row
	return &cp
}

// Package dooray implements the workplace calendar adapter against the
// Dooray calendar REST API (JSON bodies, "Authorization: dooray-api <token>"
// header). It provides an [Adapter] satisfying the sync engine's Calendar
// interface and conversion between Dooray's wire representation and
// [model.Event].
package dooray

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/njoerd114/calmirror/internal/model"
	"github.com/njoerd114/calmirror/internal/retry"
)

// ID is the calendar identity of the Dooray adapter.
const ID model.CalendarID = "dooray"

// Adapter talks to one Dooray calendar. Create one with [NewAdapter].
type Adapter struct {
	baseURL    string
	token      string
	calendarID string
	hc         *http.Client
	log        *slog.Logger
}

// NewAdapter creates an Adapter for the given Dooray calendar.
func NewAdapter(baseURL, token, calendarID string, logger *slog.Logger) *Adapter {
	return &Adapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		calendarID: calendarID,
		hc:         &http.Client{Timeout: 30 * time.Second},
		log:        logger,
	}
}

// Fetch returns all events intersecting [from, to]. Events with a missing or
// pre-2000 start time are skipped; Dooray is known to emit such rows for
// malformed entries.
func (a *Adapter) Fetch(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	q := url.Values{}
	q.Set("timeMin", from.Format(time.RFC3339))
	q.Set("timeMax", to.Format(time.RFC3339))

	var wire []doorayEvent
	err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		return a.doJSON(ctx, http.MethodGet, a.eventsPath(""), q, nil, &wire)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch dooray events: %w", err)
	}

	events := make([]model.Event, 0, len(wire))
	for _, w := range wire {
		ev, err := eventFromWire(w)
		if err != nil {
			a.log.Debug("skipping unparseable dooray event", "id", w.ID, "error", err)
			continue
		}
		if !model.ValidStart(ev.Start) {
			a.log.Debug("skipping dooray event with invalid start", "id", w.ID, "start", ev.Start)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Create writes a new event and returns the Dooray-assigned id.
func (a *Adapter) Create(ctx context.Context, ev model.Event, vis model.Visibility) (string, error) {
	body := buildEventBody(ev, vis)

	var created struct {
		ID string `json:"id"`
	}
	err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		return a.doJSON(ctx, http.MethodPost, a.eventsPath(""), nil, body, &created)
	})
	if err != nil {
		return "", fmt.Errorf("create dooray event %q: %w", ev.Title, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create dooray event %q: response carried no id", ev.Title)
	}
	return created.ID, nil
}

// Update rewrites the event with the given Dooray id.
func (a *Adapter) Update(ctx context.Context, targetID string, ev model.Event, vis model.Visibility) error {
	body := buildEventBody(ev, vis)
	err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		return a.doJSON(ctx, http.MethodPut, a.eventsPath(targetID), nil, body, nil)
	})
	if err != nil {
		return fmt.Errorf("update dooray event %s: %w", targetID, err)
	}
	return nil
}

// Delete removes the event with the given Dooray id. An already-deleted event
// is an error here; the engine keeps the mapping row and retries next run.
func (a *Adapter) Delete(ctx context.Context, targetID string) error {
	err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		return a.doJSON(ctx, http.MethodDelete, a.eventsPath(targetID), nil, nil, nil)
	})
	if err != nil {
		return fmt.Errorf("delete dooray event %s: %w", targetID, err)
	}
	return nil
}

func (a *Adapter) eventsPath(eventID string) string {
	p := fmt.Sprintf("/calendar/v1/calendars/%s/events", url.PathEscape(a.calendarID))
	if eventID != "" {
		p += "/" + url.PathEscape(eventID)
	}
	return p
}

// envelope is the outer structure of every Dooray API response.
type envelope struct {
	Header struct {
		IsSuccessful  bool   `json:"isSuccessful"`
		ResultCode    int    `json:"resultCode"`
		ResultMessage string `json:"resultMessage"`
	} `json:"header"`
	Result json.RawMessage `json:"result"`
}

// doJSON performs one authenticated request and decodes the envelope's result
// into out (when out is non-nil).
func (a *Adapter) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := a.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "dooray-api "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.hc.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("dooray returned 401 Unauthorized — check dooray.token")
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("dooray returned unexpected status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !env.Header.IsSuccessful {
		return fmt.Errorf("dooray API error %d: %s", env.Header.ResultCode, env.Header.ResultMessage)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
	}
	return nil
}

// Package googlecal implements the Google Calendar adapter over the v3 REST
// API, authenticating with an OAuth2 refresh token. It provides an [Adapter]
// satisfying the sync engine's Calendar interface and conversion between
// Google's wire representation and [model.Event].
package googlecal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/njoerd114/calmirror/internal/model"
	"github.com/njoerd114/calmirror/internal/retry"
)

// ID is the calendar identity of the Google adapter.
const ID model.CalendarID = "google"

const apiBase = "https://www.googleapis.com/calendar/v3"

// Adapter talks to one Google calendar. Create one with [NewAdapter].
type Adapter struct {
	calendarID string
	tokens     *tokenSource
	hc         *http.Client
	log        *slog.Logger
}

// NewAdapter creates an Adapter for the given Google calendar.
func NewAdapter(clientID, clientSecret, refreshToken, calendarID string, logger *slog.Logger) *Adapter {
	hc := &http.Client{Timeout: 30 * time.Second}
	return &Adapter{
		calendarID: calendarID,
		tokens: &tokenSource{
			clientID:     clientID,
			clientSecret: clientSecret,
			refreshToken: refreshToken,
			hc:           hc,
		},
		hc:  hc,
		log: logger,
	}
}

// Fetch returns all events intersecting [from, to], following pagination.
// Cancelled events and events with an invalid start time are skipped.
func (a *Adapter) Fetch(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	var events []model.Event
	pageToken := ""

	for {
		q := url.Values{}
		q.Set("timeMin", from.UTC().Format(time.RFC3339))
		q.Set("timeMax", to.UTC().Format(time.RFC3339))
		q.Set("maxResults", "2500")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page eventsPage
		err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
			return a.doJSON(ctx, http.MethodGet, a.eventsPath("")+"?"+q.Encode(), nil, &page)
		})
		if err != nil {
			return nil, fmt.Errorf("fetch google events: %w", err)
		}

		for _, w := range page.Items {
			if w.Status == "cancelled" {
				continue
			}
			ev, err := eventFromWire(w)
			if err != nil {
				a.log.Debug("skipping unparseable google event", "id", w.ID, "error", err)
				continue
			}
			if !model.ValidStart(ev.Start) {
				a.log.Debug("skipping google event with invalid start", "id", w.ID, "start", ev.Start)
				continue
			}
			events = append(events, ev)
		}

		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

// Create inserts a new event and returns the Google-assigned id.
func (a *Adapter) Create(ctx context.Context, ev model.Event, vis model.Visibility) (string, error) {
	body := buildEventBody(ev, vis)

	var created googleEvent
	err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		return a.doJSON(ctx, http.MethodPost, a.eventsPath(""), body, &created)
	})
	if err != nil {
		return "", fmt.Errorf("create google event %q: %w", ev.Title, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create google event %q: response carried no id", ev.Title)
	}
	return created.ID, nil
}

// Update rewrites the event with the given Google id.
func (a *Adapter) Update(ctx context.Context, targetID string, ev model.Event, vis model.Visibility) error {
	body := buildEventBody(ev, vis)
	err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		return a.doJSON(ctx, http.MethodPut, a.eventsPath(targetID), body, nil)
	})
	if err != nil {
		return fmt.Errorf("update google event %s: %w", targetID, err)
	}
	return nil
}

// Delete removes the event with the given Google id. Google answers 404 or
// 410 for an already-deleted event; both are treated as success.
func (a *Adapter) Delete(ctx context.Context, targetID string) error {
	err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		err := a.doJSON(ctx, http.MethodDelete, a.eventsPath(targetID), nil, nil)
		if isGone(err) {
			a.log.Debug("google event already gone", "id", targetID)
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete google event %s: %w", targetID, err)
	}
	return nil
}

func (a *Adapter) eventsPath(eventID string) string {
	p := fmt.Sprintf("%s/calendars/%s/events", apiBase, url.PathEscape(a.calendarID))
	if eventID != "" {
		p += "/" + url.PathEscape(eventID)
	}
	return p
}

// statusError carries an HTTP status for already-gone detection on delete.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("google API returned status %d: %s", e.status, e.body)
}

func isGone(err error) bool {
	se, ok := err.(*statusError)
	return ok && (se.status == http.StatusNotFound || se.status == http.StatusGone)
}

// doJSON performs one authenticated request and decodes the response into out
// (when out is non-nil).
func (a *Adapter) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	tok, err := a.tokens.token(ctx)
	if err != nil {
		return err
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
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.hc.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{status: resp.StatusCode, body: string(bytes.TrimSpace(msg))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

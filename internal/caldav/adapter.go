// Package caldav implements the iCloud/CalDAV calendar adapter. Events are
// read with a calendar-query REPORT and written as iCal objects PUT at
// <collection>/<uid>.ics; the iCal payloads are parsed and serialized with
// the golang-ical library rather than ad hoc text extraction.
package caldav

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/njoerd114/calmirror/internal/model"
	"github.com/njoerd114/calmirror/internal/retry"
)

// ID is the calendar identity of the CalDAV adapter.
const ID model.CalendarID = "icloud"

const timeRangeLayout = "20060102T150405Z"

// Adapter talks to one CalDAV calendar collection. Create one with
// [NewAdapter].
type Adapter struct {
	collectionURL string
	username      string
	password      string
	hc            *http.Client
	log           *slog.Logger
}

// NewAdapter creates an Adapter for the given CalDAV collection.
func NewAdapter(collectionURL, username, password string, logger *slog.Logger) *Adapter {
	if !strings.HasSuffix(collectionURL, "/") {
		collectionURL += "/"
	}
	return &Adapter{
		collectionURL: collectionURL,
		username:      username,
		password:      password,
		hc:            &http.Client{Timeout: 30 * time.Second},
		log:           logger,
	}
}

// multistatus is the 207 response body of a calendar-query REPORT.
type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href      string    `xml:"href"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Status string `xml:"status"`
	Prop   struct {
		CalendarData string `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
	} `xml:"prop"`
}

// Fetch returns all events intersecting [from, to] via a time-range
// calendar-query. Recurrence-override components and events with an invalid
// start time are skipped.
func (a *Adapter) Fetch(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	body := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <c:calendar-data/>
  </d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="VEVENT">
        <c:time-range start="%s" end="%s"/>
      </c:comp-filter>
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`, from.UTC().Format(timeRangeLayout), to.UTC().Format(timeRangeLayout))

	var ms multistatus
	err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		req, err := http.NewRequestWithContext(ctx, "REPORT", a.collectionURL, strings.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating REPORT request: %w", err)
		}
		req.SetBasicAuth(a.username, a.password)
		req.Header.Set("Content-Type", "application/xml; charset=utf-8")
		req.Header.Set("Depth", "1")

		resp, err := a.hc.Do(req)
		if err != nil {
			return fmt.Errorf("executing REPORT: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if err := checkStatus(resp, http.StatusMultiStatus, http.StatusOK); err != nil {
			return err
		}

		ms = multistatus{}
		if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
			return fmt.Errorf("decoding multistatus: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch caldav events: %w", err)
	}

	var events []model.Event
	for _, r := range ms.Responses {
		data := calendarData(r)
		if data == "" {
			continue
		}
		parsed, err := eventsFromICal(data)
		if err != nil {
			a.log.Debug("skipping unparseable ical object", "href", r.Href, "error", err)
			continue
		}
		for _, ev := range parsed {
			if !model.ValidStart(ev.Start) {
				a.log.Debug("skipping caldav event with invalid start", "uid", ev.SourceID, "start", ev.Start)
				continue
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

// Create PUTs a new iCal object and returns its UID, which later Update and
// Delete calls resolve back to the object path.
func (a *Adapter) Create(ctx context.Context, ev model.Event, vis model.Visibility) (string, error) {
	uid := newUID()
	payload := buildICal(uid, ev, vis)

	err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		return a.put(ctx, uid, payload, true)
	})
	if err != nil {
		return "", fmt.Errorf("create caldav event %q: %w", ev.Title, err)
	}
	return uid, nil
}

// Update overwrites the iCal object for the given UID.
func (a *Adapter) Update(ctx context.Context, targetID string, ev model.Event, vis model.Visibility) error {
	payload := buildICal(targetID, ev, vis)
	err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		return a.put(ctx, targetID, payload, false)
	})
	if err != nil {
		return fmt.Errorf("update caldav event %s: %w", targetID, err)
	}
	return nil
}

// Delete removes the iCal object for the given UID. A 404 means the object
// is already gone and is treated as success.
func (a *Adapter) Delete(ctx context.Context, targetID string) error {
	err := retry.Do(ctx, retry.DefaultMaxAttempts, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.objectURL(targetID), nil)
		if err != nil {
			return fmt.Errorf("creating DELETE request: %w", err)
		}
		req.SetBasicAuth(a.username, a.password)

		resp, err := a.hc.Do(req)
		if err != nil {
			return fmt.Errorf("executing DELETE: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusNotFound {
			a.log.Debug("caldav object already gone", "uid", targetID)
			return nil
		}
		return checkStatus(resp, http.StatusNoContent, http.StatusOK)
	})
	if err != nil {
		return fmt.Errorf("delete caldav event %s: %w", targetID, err)
	}
	return nil
}

// put writes payload at the object URL for uid. ifNoneMatch guards creates
// against clobbering an existing object.
func (a *Adapter) put(ctx context.Context, uid, payload string, ifNoneMatch bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.objectURL(uid), strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating PUT request: %w", err)
	}
	req.SetBasicAuth(a.username, a.password)
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	if ifNoneMatch {
		req.Header.Set("If-None-Match", "*")
	}

	resp, err := a.hc.Do(req)
	if err != nil {
		return fmt.Errorf("executing PUT: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return checkStatus(resp, http.StatusCreated, http.StatusNoContent, http.StatusOK)
}

func (a *Adapter) objectURL(uid string) string {
	return a.collectionURL + uid + ".ics"
}

func calendarData(r davResponse) string {
	for _, ps := range r.Propstats {
		if strings.Contains(ps.Status, "200") && ps.Prop.CalendarData != "" {
			return ps.Prop.CalendarData
		}
	}
	return ""
}

func checkStatus(resp *http.Response, want ...int) error {
	for _, w := range want {
		if resp.StatusCode == w {
			return nil
		}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("caldav server returned 401 Unauthorized — check caldav credentials")
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("caldav server returned unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
}

// newUID generates a globally unique iCal UID for a mirror object.
func newUID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%d-%s@calmirror", time.Now().UTC().Unix(), hex.EncodeToString(b[:]))
}

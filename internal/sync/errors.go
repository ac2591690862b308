package sync

import (
	"fmt"

	"github.com/njoerd114/calmirror/internal/model"
)

// ErrorKind classifies the failures a sync pass can record.
type ErrorKind string

const (
	// FetchFailed means one calendar's events were unavailable this run.
	// The calendar is excluded as a source for the rest of the pass.
	FetchFailed ErrorKind = "fetch_failed"

	// RemoteWriteFailed means a create, update, or delete was rejected by a
	// target backend. Mapping state is left consistent with the last success.
	RemoteWriteFailed ErrorKind = "remote_write_failed"

	// StoreIOFailed means a mapping-store read or write failed.
	StoreIOFailed ErrorKind = "store_io_failed"

	// ConfigIncomplete means a required calendar or credential was missing at
	// engine construction. Surfaced immediately, never mid-run.
	ConfigIncomplete ErrorKind = "config_incomplete"
)

// SyncError is one recorded failure from a sync pass. Fields that do not
// apply to the failure (e.g. Target for a fetch failure) are left empty.
type SyncError struct {
	Kind     ErrorKind
	SourceID string
	Source   model.CalendarID
	Target   model.CalendarID
	Message  string
}

// String renders the error for log and CLI output.
func (e SyncError) String() string {
	switch {
	case e.Target == "" && e.SourceID == "":
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Source, e.Message)
	case e.SourceID == "":
		return fmt.Sprintf("[%s] %s->%s: %s", e.Kind, e.Source, e.Target, e.Message)
	default:
		return fmt.Sprintf("[%s] %s->%s %s: %s", e.Kind, e.Source, e.Target, e.SourceID, e.Message)
	}
}

// Result aggregates one sync pass. The run always completes and returns a
// Result; per-event and per-calendar failures land in Errors instead of
// aborting the pass.
type Result struct {
	Created int
	Updated int
	Deleted int
	Errors  []SyncError
}

// record appends a failure to the result.
func (r *Result) record(kind ErrorKind, sourceID string, source, target model.CalendarID, err error) {
	r.Errors = append(r.Errors, SyncError{
		Kind:     kind,
		SourceID: sourceID,
		Source:   source,
		Target:   target,
		Message:  err.Error(),
	})
}

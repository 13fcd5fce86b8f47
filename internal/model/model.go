package model

import (
	"encoding/json"
	"time"
)

// DateLayout is the calendar-day format used in window filters and config.
const DateLayout = "2006-01-02"

// Source names used for logging, metrics, output files and the run ledger.
const (
	SourceACLED = "acled"
	SourceVIIRS = "viirs"
)

// FetchWindow is an inclusive date range used as the event_date filter.
// Daily windows have Start == End.
type FetchWindow struct {
	Start time.Time
	End   time.Time
}

// Filter renders the window as the API's "from|to" date filter.
func (w FetchWindow) Filter() string {
	return w.Start.Format(DateLayout) + "|" + w.End.Format(DateLayout)
}

func (w FetchWindow) String() string {
	if w.Start.Equal(w.End) {
		return w.Start.Format(DateLayout)
	}
	return w.Filter()
}

// Record is an opaque API record, kept as the exact bytes the API returned.
type Record = json.RawMessage

// RecordSet is the ordered accumulation of records for one run.
type RecordSet []Record

// Page is a single API response within a window. An empty page ends the window.
type Page struct {
	Window  FetchWindow
	Offset  int
	Records []Record
}

// Credentials authenticate against the event-data API.
type Credentials struct {
	APIKey string
	Email  string
}

// RunResult summarizes one fetcher run.
type RunResult struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Path       string    `json:"path"`
	Records    int       `json:"records"`
	Pages      int       `json:"pages"`
	Windows    int       `json:"windows"`
	Written    bool      `json:"written"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Run status values stored in the run ledger.
const (
	RunStatusOK     = "ok"
	RunStatusEmpty  = "empty"
	RunStatusFailed = "failed"
)

// RunRecord is a run ledger row.
type RunRecord struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Status     string    `json:"status"`
	Records    int       `json:"records"`
	Pages      int       `json:"pages"`
	Path       string    `json:"path"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

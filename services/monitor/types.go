package monitor

import (
	"context"
	"time"

	"propwatch-backend/lib/historystore"
)

type County string

type RecordType string

const (
	RecordTypeSale        RecordType = "sale"
	RecordTypeTransfer    RecordType = "transfer"
	RecordTypeLien        RecordType = "lien"
	RecordTypeForeclosure RecordType = "foreclosure"
)

// PropertyRecord is the canonical shape every county source gets
// normalized into. It lives for one poll cycle; durable state is the
// history entry derived from it.
type PropertyRecord struct {
	County   County     `json:"county"`
	RecordID string     `json:"record_id,omitempty"`
	Type     RecordType `json:"record_type"`
	Address  string     `json:"address"`
	ZipCode  string     `json:"zip_code,omitempty"`
	// nil when the record type carries no price or the amount was
	// undisclosed.
	Price     *int64    `json:"price,omitempty"`
	Date      time.Time `json:"transaction_date"`
	SourceURL string    `json:"source_url,omitempty"`
	// unrecognized source fields, kept opaquely for audit/display.
	// never part of identity or diffing.
	Raw map[string]string `json:"raw,omitempty"`
}

// Fingerprint identifies which real-world record an observation is
// (Key) and which version of it was observed (ContentHash).
type Fingerprint struct {
	Key         string
	ContentHash string
	// true when the source had no native identifier and the key was
	// derived from address + transaction date.
	Derived bool
	Record  PropertyRecord
}

type Classification string

const (
	ClassificationNew       Classification = "new"
	ClassificationUpdated   Classification = "updated"
	ClassificationUnchanged Classification = "unchanged"
	ClassificationRemoved   Classification = "removed"
)

type ClassifiedRecord struct {
	Classification Classification
	Key            string
	Derived        bool
	// for Removed this is the last-known snapshot out of the history
	// store, so filters still apply meaningfully.
	Record       PropertyRecord
	PreviousHash string
}

type Event struct {
	Kind      Classification `json:"kind"`
	Record    PropertyRecord `json:"record"`
	Timestamp time.Time      `json:"timestamp"`
	// filled by the optional enrichment hook before dispatch.
	AttachmentPath string `json:"attachment_path,omitempty"`
}

// HistoryStore is the durable state boundary. lib/historystore
// implements it over sqlite; tests may substitute their own.
type HistoryStore interface {
	Get(ctx context.Context, county, key string) (*historystore.Entry, error)
	ListActive(ctx context.Context, county string) ([]historystore.Entry, error)
	WithTx(ctx context.Context, fn func(tx historystore.Tx) error) error
	MarkNotified(ctx context.Context, county, key string, at time.Time) error
}

// Dispatcher delivers one event to one notification transport.
// Retry and backoff belong to the dispatcher, not the core.
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, event Event) error
}

// Enricher optionally attaches extra material (screenshots and the
// like) to an event before dispatch. Failures never block dispatch.
type Enricher interface {
	Enrich(ctx context.Context, event *Event) error
}

type CountySummary struct {
	County    County `json:"county"`
	New       int    `json:"new"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Removed   int    `json:"removed"`
	Dropped   int    `json:"dropped"`
	Notified  int    `json:"notified"`
	// dispatcher-reported delivery failures; the store state for
	// these records is already final (at-most-once).
	DispatchFailures int `json:"dispatch_failures,omitempty"`
	// per-county failure; other counties are unaffected.
	Err string `json:"err,omitempty"`
}

type CycleSummary struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Counties   []CountySummary `json:"counties"`
}

// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies. Every increment method is nil-receiver safe
// so callers can run without metrics by passing a nil *Collector.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Ingestion
	EventsReceived  int64
	EventsIgnored   int64
	ResultsRecorded int64
	DecodeErrors    int64

	// Publishing
	FactsSent     int64
	FactsFailed   int64
	ReportsSent   int64
	ReportsFailed int64
	EncodeErrors  int64

	// Archive
	ArchiveWriteSuccess int64
	ArchiveWriteFailure int64

	// Notification
	NotifySuccess int64
	NotifyFailure int64

	// Disabled is true when publishing was disabled for the run.
	Disabled bool

	// Dimensions (informational, set at construction)
	RunID          string
	ForemanURL     string
	ArchiveBackend string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	eventsReceived  int64
	eventsIgnored   int64
	resultsRecorded int64
	decodeErrors    int64

	factsSent     int64
	factsFailed   int64
	reportsSent   int64
	reportsFailed int64
	encodeErrors  int64

	archiveWriteSuccess int64
	archiveWriteFailure int64

	notifySuccess int64
	notifyFailure int64

	disabled bool

	runID          string
	foremanURL     string
	archiveBackend string
}

// NewCollector creates a Collector with dimension labels.
// archiveBackend is empty when archiving is off.
func NewCollector(runID, foremanURL, archiveBackend string) *Collector {
	return &Collector{
		runID:          runID,
		foremanURL:     foremanURL,
		archiveBackend: archiveBackend,
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Ingestion ---

// IncEventsReceived records one decoded event.
func (c *Collector) IncEventsReceived() {
	if c == nil {
		return
	}
	c.inc(&c.eventsReceived)
}

// IncEventsIgnored records an event whose kind is not consumed.
func (c *Collector) IncEventsIgnored() {
	if c == nil {
		return
	}
	c.inc(&c.eventsIgnored)
}

// IncResultsRecorded records a task result buffered into run state.
func (c *Collector) IncResultsRecorded() {
	if c == nil {
		return
	}
	c.inc(&c.resultsRecorded)
}

// IncDecodeErrors records an event stream decode error.
func (c *Collector) IncDecodeErrors() {
	if c == nil {
		return
	}
	c.inc(&c.decodeErrors)
}

// --- Publishing ---
// Counters are per host document, not per run.

// IncFactsSent records a facts document accepted by Foreman.
func (c *Collector) IncFactsSent() {
	if c == nil {
		return
	}
	c.inc(&c.factsSent)
}

// IncFactsFailed records a facts document that failed to send.
func (c *Collector) IncFactsFailed() {
	if c == nil {
		return
	}
	c.inc(&c.factsFailed)
}

// IncReportsSent records a config report accepted by Foreman.
func (c *Collector) IncReportsSent() {
	if c == nil {
		return
	}
	c.inc(&c.reportsSent)
}

// IncReportsFailed records a config report that failed to send or build.
func (c *Collector) IncReportsFailed() {
	if c == nil {
		return
	}
	c.inc(&c.reportsFailed)
}

// IncEncodeErrors records a document that could not be serialized.
func (c *Collector) IncEncodeErrors() {
	if c == nil {
		return
	}
	c.inc(&c.encodeErrors)
}

// --- Archive ---

// IncArchiveWriteSuccess records a successful archive write (per document).
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.archiveWriteSuccess)
}

// IncArchiveWriteFailure records a failed archive write (per document).
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.archiveWriteFailure)
}

// --- Notification ---

// IncNotifySuccess records a delivered run-completed notification.
func (c *Collector) IncNotifySuccess() {
	if c == nil {
		return
	}
	c.inc(&c.notifySuccess)
}

// IncNotifyFailure records a failed run-completed notification.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.inc(&c.notifyFailure)
}

// SetDisabled marks publishing as disabled for the run.
func (c *Collector) SetDisabled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.disabled = true
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		EventsReceived:  c.eventsReceived,
		EventsIgnored:   c.eventsIgnored,
		ResultsRecorded: c.resultsRecorded,
		DecodeErrors:    c.decodeErrors,

		FactsSent:     c.factsSent,
		FactsFailed:   c.factsFailed,
		ReportsSent:   c.reportsSent,
		ReportsFailed: c.reportsFailed,
		EncodeErrors:  c.encodeErrors,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,

		NotifySuccess: c.notifySuccess,
		NotifyFailure: c.notifyFailure,

		Disabled: c.disabled,

		RunID:          c.runID,
		ForemanURL:     c.foremanURL,
		ArchiveBackend: c.archiveBackend,
	}
}

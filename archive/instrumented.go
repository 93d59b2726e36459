package archive

import (
	"context"

	"github.com/pithecene-io/runreport/metrics"
)

// InstrumentedArchiver wraps an Archiver and counts writes on the metrics
// collector, one success or failure per record.
type InstrumentedArchiver struct {
	inner     Archiver
	collector *metrics.Collector
}

// NewInstrumented wraps an archiver with metrics instrumentation.
func NewInstrumented(inner Archiver, collector *metrics.Collector) *InstrumentedArchiver {
	return &InstrumentedArchiver{inner: inner, collector: collector}
}

// Write delegates to the inner archiver and records success or failure.
func (a *InstrumentedArchiver) Write(ctx context.Context, rec *Record) error {
	err := a.inner.Write(ctx, rec)
	if err != nil {
		a.collector.IncArchiveWriteFailure()
	} else {
		a.collector.IncArchiveWriteSuccess()
	}
	return err
}

// Close delegates to the inner archiver.
func (a *InstrumentedArchiver) Close() error {
	return a.inner.Close()
}

var _ Archiver = (*InstrumentedArchiver)(nil)

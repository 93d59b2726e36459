// Package archive keeps a copy of every document handed to Foreman in a
// lode dataset, together with its delivery outcome.
//
// Records are Hive-partitioned by kind/day/run_id so one run's documents
// can be listed without scanning the whole dataset.
package archive

import (
	"context"
	"errors"
	"time"
)

// DefaultDataset is the lode dataset ID used when none is configured.
const DefaultDataset = "runreport"

// Record kinds, one per Foreman endpoint.
const (
	KindFacts  = "facts"
	KindReport = "report"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"kind", "day", "run_id"}

// DeriveDay computes the partition day from the run start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds the archive partition values for one run.
type Config struct {
	// Dataset is the lode dataset ID (default "runreport").
	Dataset string
	// Day is the partition day derived from the run start time.
	Day string
	// RunID is the run identifier.
	RunID string
}

// Validate checks that every partition value is present.
func (c *Config) Validate() error {
	if c.Day == "" {
		return errors.New("archive: day is required")
	}
	if c.RunID == "" {
		return errors.New("archive: run_id is required")
	}
	return nil
}

func (c *Config) dataset() string {
	if c.Dataset == "" {
		return DefaultDataset
	}
	return c.Dataset
}

// Record is one archived document.
type Record struct {
	// Kind is KindFacts or KindReport.
	Kind string
	// Host is the host the document describes.
	Host string
	// URL is the endpoint the document was posted to.
	URL string
	// Delivered is true when Foreman accepted the document.
	Delivered bool
	// Error is the delivery error text, if any.
	Error string
	// Document is the facts or report document as sent.
	Document any
	// ArchivedAt is when the record was written.
	ArchivedAt time.Time
}

// Archiver persists records.
type Archiver interface {
	// Write stores one record. Must respect context cancellation.
	Write(ctx context.Context, rec *Record) error
	// Close releases archiver resources.
	Close() error
}

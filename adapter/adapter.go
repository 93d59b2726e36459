// Package adapter defines the run notification boundary.
//
// Adapters tell downstream systems that a run's documents were handed to
// Foreman. They are a separate channel from the Foreman transport: they
// retry with exponential backoff, the transport never does.
package adapter

import (
	"context"
	"fmt"
	"time"
)

// EventTypeRunCompleted is the event_type of every notification.
const EventTypeRunCompleted = "run_completed"

// DefaultBackoff is the delay before the first retry. It doubles per retry.
const DefaultBackoff = 500 * time.Millisecond

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	Version     string   `json:"version"`
	EventType   string   `json:"event_type"` // always "run_completed"
	RunID       string   `json:"run_id"`
	Playbook    string   `json:"playbook,omitempty"`
	Outcome     string   `json:"outcome"` // published, disabled, incomplete
	ForemanURL  string   `json:"foreman_url"`
	Hosts       []string `json:"hosts"`
	FactsSent   int64    `json:"facts_sent"`
	FactsFailed int64    `json:"facts_failed"`
	ReportsSent int64    `json:"reports_sent"`
	// ReportsFailed counts reports that failed to build or send.
	ReportsFailed int64  `json:"reports_failed"`
	ArchivePath   string `json:"archive_path,omitempty"`
	Timestamp     string `json:"timestamp"` // ISO 8601
	DurationMs    int64  `json:"duration_ms"`
}

// Adapter publishes run completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Retry runs op up to 1+retries times with exponential backoff starting at
// base. A nil permanent func treats every error as retriable; otherwise an
// error for which permanent returns true stops immediately.
func Retry(ctx context.Context, name string, retries int, base time.Duration, op func(context.Context) error, permanent func(error) bool) error {
	if base <= 0 {
		base = DefaultBackoff
	}

	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * base
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}

// Package types defines core domain types for runreport.
// Event kinds and wire shapes follow ansible-runner job events.
//
//nolint:revive // types is a common Go package naming convention
package types

import "errors"

// RunMeta contains run identity for logging, archiving and notifications.
type RunMeta struct {
	// RunID identifies one orchestrator run. Must be non-empty.
	RunID string
	// Playbook is the playbook name, when known. Informational only.
	Playbook string
}

// Validate checks that the run identity is usable.
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	return nil
}

// OutcomeStatus represents the final status of a run as seen by runreport.
type OutcomeStatus string

const (
	// OutcomePublished indicates the stats event arrived and publishing ran.
	// Individual hosts may still have failed; see the run report counters.
	OutcomePublished OutcomeStatus = "published"
	// OutcomeDisabled indicates the callback was disabled for this run.
	OutcomeDisabled OutcomeStatus = "disabled"
	// OutcomeIncomplete indicates the stream ended without a stats event.
	OutcomeIncomplete OutcomeStatus = "incomplete"
	// OutcomeStreamError indicates the event stream could not be decoded.
	OutcomeStreamError OutcomeStatus = "stream_error"
)

// RunOutcome represents the final outcome of a run.
type RunOutcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus
	// Message is a human-readable description.
	Message string
}

package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/runreport/archive"
	"github.com/pithecene-io/runreport/metrics"
	"github.com/pithecene-io/runreport/types"
)

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	RunID      string              `json:"run_id"`
	Playbook   string              `json:"playbook,omitempty"`
	Outcome    types.OutcomeStatus `json:"outcome"`
	Message    string              `json:"message"`
	ExitCode   int                 `json:"exit_code"`
	DurationMs int64               `json:"duration_ms"`
	EventCount int64               `json:"event_count"`

	State          string `json:"state"`
	DisabledReason string `json:"disabled_reason,omitempty"`

	Foreman    *ReportForeman    `json:"foreman"`
	Hosts      []string          `json:"hosts"`
	Deliveries []Delivery        `json:"deliveries"`
	Metrics    *metrics.Snapshot `json:"metrics"`

	NotifyError string `json:"notify_error,omitempty"`
}

// ReportForeman holds per-endpoint delivery counts in the report.
type ReportForeman struct {
	URL           string `json:"url"`
	FactsSent     int64  `json:"facts_sent"`
	FactsFailed   int64  `json:"facts_failed"`
	ReportsSent   int64  `json:"reports_sent"`
	ReportsFailed int64  `json:"reports_failed"`
}

// BuildRunReport composes a RunReport from a RunResult and metrics snapshot.
// The exitCode is the process exit code that will be returned to the caller.
func BuildRunReport(result *RunResult, snap metrics.Snapshot, foremanURL string, exitCode int) *RunReport {
	factsSent, factsFailed := result.Counts(archive.KindFacts)
	reportsSent, reportsFailed := result.Counts(archive.KindReport)

	rep := &RunReport{
		RunID:          result.RunMeta.RunID,
		Playbook:       result.RunMeta.Playbook,
		Outcome:        result.Outcome.Status,
		Message:        result.Outcome.Message,
		ExitCode:       exitCode,
		DurationMs:     result.Duration.Milliseconds(),
		EventCount:     result.EventCount,
		State:          result.State.String(),
		DisabledReason: result.DisabledReason,
		Foreman: &ReportForeman{
			URL:           foremanURL,
			FactsSent:     factsSent,
			FactsFailed:   factsFailed,
			ReportsSent:   reportsSent,
			ReportsFailed: reportsFailed,
		},
		Hosts:       result.Hosts,
		Deliveries:  result.Deliveries,
		Metrics:     &snap,
		NotifyError: result.NotifyError,
	}
	if rep.Hosts == nil {
		rep.Hosts = []string{}
	}
	if rep.Deliveries == nil {
		rep.Deliveries = []Delivery{}
	}
	return rep
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	data, err := marshalRunReport(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

func marshalRunReport(report *RunReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// writeRunReportTo writes report JSON to any writer.
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := marshalRunReport(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

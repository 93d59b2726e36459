package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every exported metric name.
const Namespace = "runreport"

// Registry builds a Prometheus registry holding the snapshot values.
// Counters carry the non-empty run dimensions as constant labels.
func (s Snapshot) Registry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{}
	for name, value := range map[string]string{
		"run_id":          s.RunID,
		"foreman_url":     s.ForemanURL,
		"archive_backend": s.ArchiveBackend,
	} {
		if value != "" {
			labels[name] = value
		}
	}

	counters := []struct {
		name  string
		help  string
		value int64
	}{
		{"events_received_total", "Job events decoded from the input stream.", s.EventsReceived},
		{"events_ignored_total", "Job events with a kind runreport does not consume.", s.EventsIgnored},
		{"results_recorded_total", "Task results buffered into run state.", s.ResultsRecorded},
		{"decode_errors_total", "Event stream decode errors.", s.DecodeErrors},
		{"facts_sent_total", "Facts documents accepted by Foreman.", s.FactsSent},
		{"facts_failed_total", "Facts documents that failed to send.", s.FactsFailed},
		{"reports_sent_total", "Config reports accepted by Foreman.", s.ReportsSent},
		{"reports_failed_total", "Config reports that failed to build or send.", s.ReportsFailed},
		{"encode_errors_total", "Documents that could not be serialized.", s.EncodeErrors},
		{"archive_write_success_total", "Documents written to the archive.", s.ArchiveWriteSuccess},
		{"archive_write_failure_total", "Documents that failed to archive.", s.ArchiveWriteFailure},
		{"notify_success_total", "Run-completed notifications delivered.", s.NotifySuccess},
		{"notify_failure_total", "Run-completed notifications that failed.", s.NotifyFailure},
	}

	for _, c := range counters {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        c.name,
			Help:        c.help,
			ConstLabels: labels,
		})
		counter.Add(float64(c.value))
		if err := reg.Register(counter); err != nil {
			return nil, fmt.Errorf("register %s: %w", c.name, err)
		}
	}

	disabled := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   Namespace,
		Name:        "disabled",
		Help:        "1 if publishing was disabled for the run.",
		ConstLabels: labels,
	})
	if s.Disabled {
		disabled.Set(1)
	}
	if err := reg.Register(disabled); err != nil {
		return nil, fmt.Errorf("register disabled: %w", err)
	}

	return reg, nil
}

// WriteTextfile writes the snapshot in Prometheus text exposition format,
// for pickup by the node_exporter textfile collector. The file is written
// atomically.
func (s Snapshot) WriteTextfile(path string) error {
	reg, err := s.Registry()
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/pithecene-io/runreport/adapter"
	"github.com/pithecene-io/runreport/archive"
	"github.com/pithecene-io/runreport/ipc"
	"github.com/pithecene-io/runreport/log"
	"github.com/pithecene-io/runreport/metrics"
	"github.com/pithecene-io/runreport/report"
	"github.com/pithecene-io/runreport/types"
)

// notifyTimeout bounds adapter publishing after the stream has ended.
const notifyTimeout = 30 * time.Second

// RunConfig configures a single run.
type RunConfig struct {
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Events is the job event stream.
	Events io.Reader
	// Format is the wire format of Events (default jsonl).
	Format ipc.Format
	// Settings is the Foreman transport configuration.
	Settings Settings
	// Transport builds the Foreman publisher. If nil, uses HTTPTransport.
	Transport TransportFactory
	// Callback supplies collaborators that are not derived from the run
	// (tracing transport wrapper, archiver, clock).
	Callback Options
	// Notifier is the optional run completion adapter.
	Notifier adapter.Adapter
	// ArchivePath is reported in the completion event when archiving.
	ArchivePath string
	// Logger overrides the run logger. If nil, a JSON logger on stderr is used.
	Logger *log.Logger
	// Collector is the metrics collector for this run.
	// If nil, no metrics are recorded (all Collector methods are nil-safe).
	Collector *metrics.Collector
}

// RunResult represents the result of a run.
type RunResult struct {
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Outcome is the run outcome.
	Outcome *types.RunOutcome
	// Duration is the total run duration.
	Duration time.Duration
	// EventCount is the number of decoded job events.
	EventCount int64
	// State is the callback state at the end of the run.
	State State
	// DisabledReason is set when publishing was disabled.
	DisabledReason string
	// Hosts lists every host that was reported on or had facts, sorted.
	Hosts []string
	// Deliveries is the outcome of every document sent.
	Deliveries []Delivery
	// NotifyError is the adapter error, if notification failed.
	NotifyError string
}

// Counts returns the number of delivered and failed documents of a kind.
func (r *RunResult) Counts(kind string) (sent, failed int64) {
	for _, d := range r.Deliveries {
		if d.Kind != kind {
			continue
		}
		if d.OK() {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}

// RunOrchestrator orchestrates a single run.
type RunOrchestrator struct {
	config    *RunConfig
	logger    *log.Logger
	startTime time.Time
}

// NewRunOrchestrator creates a new run orchestrator.
// Returns error if the run metadata or stream configuration is invalid.
func NewRunOrchestrator(config *RunConfig) (*RunOrchestrator, error) {
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	if config.Events == nil {
		return nil, errors.New("event stream is required")
	}
	if config.Format == "" {
		config.Format = ipc.FormatJSONLines
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunMeta)
	}

	return &RunOrchestrator{
		config: config,
		logger: logger,
	}, nil
}

// Execute executes the run end-to-end.
//
// Execution flow:
//  1. Configure the callback (Active or Disabled)
//  2. Ingest the event stream, publishing on the stats event
//  3. Determine outcome
//  4. Notify the adapter (best effort)
func (r *RunOrchestrator) Execute(ctx context.Context) (*RunResult, error) {
	r.startTime = r.now()

	decoder, err := ipc.NewDecoder(r.config.Format, r.config.Events)
	if err != nil {
		return nil, err
	}

	opts := r.config.Callback
	opts.Transport = r.config.Transport
	if opts.Transport == nil {
		opts.Transport = HTTPTransport
	}
	opts.Logger = r.logger
	opts.Collector = r.config.Collector
	if opts.Archiver != nil {
		opts.Archiver = archive.NewInstrumented(opts.Archiver, r.config.Collector)
	}

	callback := NewCallback(opts)
	if err := callback.Configure(r.config.Settings); err != nil {
		return nil, err
	}

	r.logger.Info("starting run", map[string]any{
		"foreman_url": callback.Settings().URL,
		"state":       callback.State().String(),
		"format":      string(r.config.Format),
	})

	state := report.NewRunStateAt(r.startTime)
	ingestion := NewIngestionEngine(decoder, callback, state, r.logger, r.config.Collector)
	ingErr := ingestion.Run(ctx)

	outcome := DetermineOutcome(ingErr, ingestion.HasTerminal(), callback.DisabledReason())
	result := r.buildResult(outcome, callback, state, ingestion)

	r.logger.Info("run completed", map[string]any{
		"outcome":  outcome.Status,
		"events":   result.EventCount,
		"hosts":    len(result.Hosts),
		"duration": result.Duration.String(),
	})

	r.notify(ctx, result)
	return result, nil
}

func (r *RunOrchestrator) now() time.Time {
	if r.config.Callback.Now != nil {
		return r.config.Callback.Now()
	}
	return time.Now()
}

// notify publishes the completion event. Failures are logged, never fatal.
func (r *RunOrchestrator) notify(ctx context.Context, result *RunResult) {
	if r.config.Notifier == nil {
		return
	}

	event := BuildCompletedEvent(result, r.config.Settings.URL, r.config.ArchivePath, r.now())
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := r.config.Notifier.Publish(notifyCtx, event); err != nil {
		r.config.Collector.IncNotifyFailure()
		result.NotifyError = err.Error()
		r.logger.Warn("run notification failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	r.config.Collector.IncNotifySuccess()
}

// BuildCompletedEvent composes the adapter payload for a finished run.
func BuildCompletedEvent(result *RunResult, foremanURL, archivePath string, at time.Time) *adapter.RunCompletedEvent {
	factsSent, factsFailed := result.Counts(archive.KindFacts)
	reportsSent, reportsFailed := result.Counts(archive.KindReport)

	hosts := result.Hosts
	if hosts == nil {
		hosts = []string{}
	}

	return &adapter.RunCompletedEvent{
		Version:       types.Version,
		EventType:     adapter.EventTypeRunCompleted,
		RunID:         result.RunMeta.RunID,
		Playbook:      result.RunMeta.Playbook,
		Outcome:       string(result.Outcome.Status),
		ForemanURL:    foremanURL,
		Hosts:         hosts,
		FactsSent:     factsSent,
		FactsFailed:   factsFailed,
		ReportsSent:   reportsSent,
		ReportsFailed: reportsFailed,
		ArchivePath:   archivePath,
		Timestamp:     at.UTC().Format(time.RFC3339),
		DurationMs:    result.Duration.Milliseconds(),
	}
}

// buildResult constructs the final run result.
func (r *RunOrchestrator) buildResult(
	outcome *types.RunOutcome,
	callback *Callback,
	state *report.RunState,
	ingestion *IngestionEngine,
) *RunResult {
	result := &RunResult{
		RunMeta:    r.config.RunMeta,
		Outcome:    outcome,
		Duration:   r.now().Sub(r.startTime),
		EventCount: ingestion.EventCount(),
		State:      callback.State(),
		Deliveries: callback.Deliveries(),
	}
	if reason := callback.DisabledReason(); reason != nil {
		result.DisabledReason = reason.Error()
	}

	hosts := append(state.ItemHosts(), state.FactHosts()...)
	for _, d := range result.Deliveries {
		hosts = append(hosts, d.Host)
	}
	hosts = append(hosts, ingestion.Stats().HostNames()...)
	result.Hosts = sortedUnique(hosts)

	return result
}

func sortedUnique(hosts []string) []string {
	slices.Sort(hosts)
	return slices.Compact(hosts)
}

package types

// EventKind discriminates events delivered by the host orchestrator.
// Values match ansible-runner job event names.
type EventKind string

// Event kinds consumed by runreport. Every other kind is ignored.
const (
	EventRunnerOK          EventKind = "runner_on_ok"
	EventRunnerFailed      EventKind = "runner_on_failed"
	EventRunnerUnreachable EventKind = "runner_on_unreachable"
	EventRunnerAsyncOK     EventKind = "runner_on_async_ok"
	EventRunnerAsyncFailed EventKind = "runner_on_async_failed"
	EventPlaybookStats     EventKind = "playbook_on_stats"
)

// IsTaskResult returns true if the kind carries a per-host task result.
func (k EventKind) IsTaskResult() bool {
	switch k {
	case EventRunnerOK, EventRunnerFailed, EventRunnerUnreachable,
		EventRunnerAsyncOK, EventRunnerAsyncFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the kind ends the run.
func (k EventKind) IsTerminal() bool {
	return k == EventPlaybookStats
}

// LogLevel is the severity attached to a config report log entry.
type LogLevel string

// Log levels accepted by the config report importer.
const (
	LogLevelErr    LogLevel = "err"
	LogLevelNotice LogLevel = "notice"
	LogLevelInfo   LogLevel = "info"
)

// Result keys with a meaning to runreport.
const (
	ResultKeyFailed  = "failed"
	ResultKeyChanged = "changed"
	ResultKeyFacts   = "ansible_facts"
)

// TaskResult is one completed task on one host.
type TaskResult struct {
	// Task is the task name.
	Task string `json:"task" msgpack:"task"`
	// Host is the host name; the aggregation key.
	Host string `json:"host" msgpack:"host"`
	// Result is the module result, stored verbatim.
	Result map[string]any `json:"result" msgpack:"result"`
}

// HostSummary holds the per-host counters computed by the orchestrator.
type HostSummary struct {
	OK          int `json:"ok" yaml:"ok"`
	Changed     int `json:"changed" yaml:"changed"`
	Failures    int `json:"failures" yaml:"failures"`
	Unreachable int `json:"unreachable" yaml:"unreachable"`
	Skipped     int `json:"skipped" yaml:"skipped"`
	Rescued     int `json:"rescued" yaml:"rescued"`
	Ignored     int `json:"ignored" yaml:"ignored"`
}

// RunStats is the end-of-run summary for every processed host.
type RunStats struct {
	// Hosts maps host name to its summary.
	Hosts map[string]HostSummary `json:"hosts"`
}

// Summary returns the summary for host, or a zero summary if absent.
func (s *RunStats) Summary(host string) HostSummary {
	if s == nil {
		return HostSummary{}
	}
	return s.Hosts[host]
}

// Event is a tagged union of everything the orchestrator delivers.
// Exactly one of Result or Stats is set, depending on Kind.
type Event struct {
	// Kind is the discriminator.
	Kind EventKind
	// Result is set for task result kinds.
	Result *TaskResult
	// Stats is set for EventPlaybookStats.
	Stats *RunStats
}

// NewResultEvent builds a task result event.
func NewResultEvent(kind EventKind, task, host string, result map[string]any) Event {
	return Event{
		Kind:   kind,
		Result: &TaskResult{Task: task, Host: host, Result: result},
	}
}

// NewStatsEvent builds an end-of-run event.
func NewStatsEvent(stats *RunStats) Event {
	return Event{Kind: EventPlaybookStats, Stats: stats}
}

package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/runreport/types"
)

// FactsType is the source-type marker the Foreman fact importer keys on.
const FactsType = "ansible"

// ErrEncodeResult is returned when a buffered result cannot be serialized
// into a log message.
var ErrEncodeResult = errors.New("cannot encode task result")

// FactsDocument is the body of POST /api/v2/hosts/facts.
type FactsDocument struct {
	Name  string       `json:"name"`
	Facts FactsPayload `json:"facts"`
}

// FactsPayload wraps the host facts with importer metadata.
type FactsPayload struct {
	AnsibleFacts map[string]any `json:"ansible_facts"`
	Type         string         `json:"_type"`
	Timestamp    string         `json:"_timestamp"`
}

// ReportDocument is the body of POST /api/v2/config_reports.
type ReportDocument struct {
	ConfigReport ConfigReport `json:"config_report"`
}

// ConfigReport is the condensed per-host run report.
type ConfigReport struct {
	Host       string        `json:"host"`
	ReportedAt string        `json:"reported_at"`
	Metrics    ReportMetrics `json:"metrics"`
	Status     ReportStatus  `json:"status"`
	Logs       []LogEntry    `json:"logs"`
	Reporter   string        `json:"reporter"`
}

// ReportMetrics holds run timing.
type ReportMetrics struct {
	Time TimeMetrics `json:"time"`
}

// TimeMetrics holds the elapsed run time in whole seconds.
type TimeMetrics struct {
	Total int64 `json:"total"`
}

// ReportStatus is the status block derived from a host summary.
type ReportStatus struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// LogEntry is one classified log line, in the nested shape the config
// report importer expects.
type LogEntry struct {
	Log LogBody `json:"log"`
}

// LogBody is the content of a LogEntry.
type LogBody struct {
	Sources  LogSource      `json:"sources"`
	Messages LogMessage     `json:"messages"`
	Level    types.LogLevel `json:"level"`
}

// LogSource names the task a log line came from.
type LogSource struct {
	Source string `json:"source"`
}

// LogMessage carries the serialized task result.
type LogMessage struct {
	Message string `json:"message"`
}

// Source returns the task name of the entry.
func (e LogEntry) Source() string { return e.Log.Sources.Source }

// Message returns the serialized result of the entry.
func (e LogEntry) Message() string { return e.Log.Messages.Message }

// Level returns the classified level of the entry.
func (e LogEntry) Level() types.LogLevel { return e.Log.Level }

// StatusFromSummary maps a host summary onto the report status block.
// Unreachable hosts count as failed.
func StatusFromSummary(s types.HostSummary) ReportStatus {
	return ReportStatus{
		Applied: s.Changed,
		Failed:  s.Failures + s.Unreachable,
		Skipped: s.Skipped,
	}
}

// BuildLog turns buffered items into classified log entries, keeping order.
func BuildLog(items []Item) ([]LogEntry, error) {
	logs := make([]LogEntry, 0, len(items))
	for i, item := range items {
		msg, err := json.Marshal(item.Result)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d (%s): %v", ErrEncodeResult, i, item.Source, err)
		}
		logs = append(logs, LogEntry{Log: LogBody{
			Sources:  LogSource{Source: item.Source},
			Messages: LogMessage{Message: string(msg)},
			Level:    Classify(item.Result),
		}})
	}
	return logs, nil
}

// Assembler builds documents from a RunState.
// The zero value is usable: it reports as "ansible" and reads time.Now.
type Assembler struct {
	// Reporter is the reporter tag. Empty means types.Reporter.
	Reporter string
	// Now returns the current instant. Nil means time.Now.
	Now func() time.Time
}

func (a *Assembler) now() time.Time {
	if a == nil || a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func (a *Assembler) reporter() string {
	if a == nil || a.Reporter == "" {
		return types.Reporter
	}
	return a.Reporter
}

// BuildReport assembles the config report for host.
// Reads but does not mutate state.
func (a *Assembler) BuildReport(state *RunState, host string, summary types.HostSummary) (*ReportDocument, error) {
	now := a.now()
	logs, err := BuildLog(state.Items(host))
	if err != nil {
		return nil, fmt.Errorf("report for %s: %w", host, err)
	}

	return &ReportDocument{ConfigReport: ConfigReport{
		Host:       host,
		ReportedAt: FormatTimestamp(now),
		Metrics: ReportMetrics{Time: TimeMetrics{
			Total: int64(state.Elapsed(now) / time.Second),
		}},
		Status:   StatusFromSummary(summary),
		Logs:     logs,
		Reporter: a.reporter(),
	}}, nil
}

// BuildFactsDocument assembles the facts document for host.
// Reads but does not mutate state.
func (a *Assembler) BuildFactsDocument(state *RunState, host string) *FactsDocument {
	facts := state.Facts(host)
	if facts == nil {
		facts = map[string]any{}
	}
	return &FactsDocument{
		Name: host,
		Facts: FactsPayload{
			AnsibleFacts: facts,
			Type:         FactsType,
			Timestamp:    FormatTimestamp(a.now()),
		},
	}
}

// FormatTimestamp renders t as ISO-8601 in UTC without an offset suffix.
// Microseconds are included only when non-zero.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04:05.000000")
}

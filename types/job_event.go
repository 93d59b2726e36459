package types

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// JobEvent is the wire shape of an ansible-runner job event.
// The same shape is used for JSON lines and msgpack frames.
type JobEvent struct {
	// UUID is the event identifier assigned by the runner.
	UUID string `json:"uuid,omitempty" msgpack:"uuid,omitempty"`
	// Counter is the runner's monotonic event counter.
	Counter int64 `json:"counter,omitempty" msgpack:"counter,omitempty"`
	// Event is the event name, e.g. runner_on_ok.
	Event string `json:"event" msgpack:"event"`
	// EventData carries the event-specific payload.
	EventData map[string]any `json:"event_data,omitempty" msgpack:"event_data,omitempty"`
}

// Stats categories in a playbook_on_stats payload. "dark" is unreachable.
var statsCategories = []string{"ok", "changed", "failures", "dark", "skipped", "rescued", "ignored", "processed"}

// ToEvent converts a job event into an Event.
// Returns ok=false for kinds runreport does not consume.
func (j *JobEvent) ToEvent() (Event, bool, error) {
	kind := EventKind(j.Event)
	switch {
	case kind.IsTaskResult():
		host, _ := j.EventData["host"].(string)
		if host == "" {
			return Event{}, false, fmt.Errorf("%s event missing host", j.Event)
		}
		task, _ := j.EventData["task"].(string)
		res, _ := j.EventData["res"].(map[string]any)
		return NewResultEvent(kind, task, host, res), true, nil

	case kind == EventPlaybookStats:
		stats, err := statsFromEventData(j.EventData)
		if err != nil {
			return Event{}, false, err
		}
		return NewStatsEvent(stats), true, nil

	default:
		return Event{}, false, nil
	}
}

func statsFromEventData(data map[string]any) (*RunStats, error) {
	stats := &RunStats{Hosts: make(map[string]HostSummary)}
	for _, category := range statsCategories {
		raw, ok := data[category]
		if !ok || raw == nil {
			continue
		}
		perHost, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("stats category %q: expected object, got %T", category, raw)
		}
		for host, v := range perHost {
			n, err := toInt(v)
			if err != nil {
				return nil, fmt.Errorf("stats %s[%s]: %w", category, host, err)
			}
			s := stats.Hosts[host]
			switch category {
			case "ok":
				s.OK = n
			case "changed":
				s.Changed = n
			case "failures":
				s.Failures = n
			case "dark":
				s.Unreachable = n
			case "skipped":
				s.Skipped = n
			case "rescued":
				s.Rescued = n
			case "ignored":
				s.Ignored = n
			}
			stats.Hosts[host] = s
		}
	}
	return stats, nil
}

// HostNames returns the summarized host names in sorted order.
func (s *RunStats) HostNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Hosts))
	for name := range s.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// toInt accepts the numeric types produced by encoding/json and msgpack.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("count %d overflows int", n)
		}
		return int(n), nil
	case float32:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

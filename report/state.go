// Package report accumulates per-host task results and facts during a run
// and assembles the Foreman facts and config report documents from them.
//
// RunState is owned by a single run loop. It is not safe for concurrent use;
// the orchestrator delivers events sequentially.
package report

import (
	"maps"
	"sort"
	"time"

	"github.com/pithecene-io/runreport/types"
)

// Item is one buffered (task name, result) pair.
type Item struct {
	// Source is the task name.
	Source string
	// Result is the module result as received.
	Result map[string]any
}

// RunState holds everything buffered for one run.
//
// Invariant: host keys are only ever added. ClearItems empties a host's
// item list but keeps the host.
type RunState struct {
	items     map[string][]Item
	facts     map[string]map[string]any
	startTime time.Time
}

// NewRunState creates an empty state whose clock starts now.
func NewRunState() *RunState {
	return NewRunStateAt(time.Now())
}

// NewRunStateAt creates an empty state with an explicit start time.
// The start time should carry a monotonic reading (time.Now does).
func NewRunStateAt(start time.Time) *RunState {
	return &RunState{
		items:     make(map[string][]Item),
		facts:     make(map[string]map[string]any),
		startTime: start,
	}
}

// RecordResult buffers one task result for host.
// If the result carries an ansible_facts object it is shallow-merged into
// the host's facts. Never fails; a nil result is stored as an empty object.
// The top level of result is copied, so later writes by the caller do not
// reach the buffered item.
func (s *RunState) RecordResult(task, host string, result map[string]any) {
	result = maps.Clone(result)
	if result == nil {
		result = map[string]any{}
	}
	s.items[host] = append(s.items[host], Item{Source: task, Result: result})

	raw, ok := result[types.ResultKeyFacts]
	if !ok {
		return
	}
	facts, ok := raw.(map[string]any)
	if !ok {
		return
	}
	dst, ok := s.facts[host]
	if !ok {
		dst = make(map[string]any, len(facts))
		s.facts[host] = dst
	}
	maps.Copy(dst, facts)
}

// Items returns a copy of the buffered items for host, in insertion order.
func (s *RunState) Items(host string) []Item {
	items := s.items[host]
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// Facts returns a copy of the merged facts for host.
// Returns nil if no facts were recorded for the host.
func (s *RunState) Facts(host string) map[string]any {
	facts, ok := s.facts[host]
	if !ok {
		return nil
	}
	return maps.Clone(facts)
}

// ItemHosts returns every host that has (or had) buffered items, sorted.
func (s *RunState) ItemHosts() []string {
	return sortedKeys(s.items)
}

// FactHosts returns every host with recorded facts, sorted.
func (s *RunState) FactHosts() []string {
	return sortedKeys(s.facts)
}

// ClearItems drops the buffered items for host after a publish attempt.
func (s *RunState) ClearItems(host string) {
	if _, ok := s.items[host]; !ok {
		return
	}
	s.items[host] = []Item{}
}

// ItemCount returns the total number of buffered items across hosts.
func (s *RunState) ItemCount() int {
	n := 0
	for _, items := range s.items {
		n += len(items)
	}
	return n
}

// StartTime returns the instant the run state was created.
func (s *RunState) StartTime() time.Time {
	return s.startTime
}

// Elapsed returns now - start. Uses the monotonic reading when both
// instants carry one, so wall clock changes during the run do not matter.
func (s *RunState) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.startTime)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

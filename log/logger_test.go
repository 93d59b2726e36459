package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/runreport/types"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_RunContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&types.RunMeta{RunID: "run-001", Playbook: "site.yml"}, &buf, zapcore.DebugLevel)

	l.Warn("sending report failed", map[string]any{"host": "h1"})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	entry := lines[0]
	if entry["level"] != "warn" {
		t.Errorf("level = %v, want warn", entry["level"])
	}
	if entry["message"] != "sending report failed" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["run_id"] != "run-001" {
		t.Errorf("run_id = %v, want run-001", entry["run_id"])
	}
	if entry["playbook"] != "site.yml" {
		t.Errorf("playbook = %v, want site.yml", entry["playbook"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["host"] != "h1" {
		t.Errorf("fields = %v, want host=h1", entry["fields"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&types.RunMeta{RunID: "run-001"}, &buf, zapcore.WarnLevel)

	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	l.Error("shown", nil)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if _, ok := lines[0]["playbook"]; ok {
		t.Error("playbook field should be omitted when empty")
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(nil, &buf, zapcore.DebugLevel).With(map[string]any{"url": "http://foreman"})

	l.Sugar().Infof("hello %s", "world")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0]["url"] != "http://foreman" {
		t.Errorf("url = %v, want http://foreman", lines[0]["url"])
	}
	if lines[0]["message"] != "hello world" {
		t.Errorf("message = %v, want hello world", lines[0]["message"])
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel(""); err != nil || lvl != zapcore.InfoLevel {
		t.Errorf("ParseLevel(\"\") = %v, %v; want info", lvl, err)
	}
	if lvl, err := ParseLevel("warn"); err != nil || lvl != zapcore.WarnLevel {
		t.Errorf("ParseLevel(warn) = %v, %v; want warn", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Warn("discarded", map[string]any{"k": "v"})
}

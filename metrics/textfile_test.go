package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSnapshot_Registry(t *testing.T) {
	c := NewCollector("run-001", "http://localhost:3000", "")
	c.IncReportsSent()
	c.IncReportsSent()
	c.SetDisabled()

	reg, err := c.Snapshot().Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}

	if got := values["runreport_reports_sent_total"]; got != 2 {
		t.Errorf("runreport_reports_sent_total = %v, want 2", got)
	}
	if got := values["runreport_disabled"]; got != 1 {
		t.Errorf("runreport_disabled = %v, want 1", got)
	}
	if got := values["runreport_facts_sent_total"]; got != 0 {
		t.Errorf("runreport_facts_sent_total = %v, want 0", got)
	}
}

func TestSnapshot_WriteTextfile(t *testing.T) {
	c := NewCollector("run-7", "http://localhost:3000", "fs")
	c.IncFactsSent()

	path := filepath.Join(t.TempDir(), "runreport.prom")
	if err := c.Snapshot().WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		"# TYPE runreport_facts_sent_total counter",
		`run_id="run-7"`,
		`archive_backend="fs"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
}

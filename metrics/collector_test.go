package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("run-001", "https://foreman.example.com", "fs")

	c.IncEventsReceived()
	c.IncEventsReceived()
	c.IncEventsIgnored()
	c.IncResultsRecorded()
	c.IncDecodeErrors()
	c.IncFactsSent()
	c.IncFactsFailed()
	c.IncFactsFailed()
	c.IncReportsSent()
	c.IncReportsSent()
	c.IncReportsSent()
	c.IncReportsFailed()
	c.IncEncodeErrors()
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteFailure()
	c.IncNotifySuccess()
	c.IncNotifyFailure()

	s := c.Snapshot()

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"EventsReceived", s.EventsReceived, 2},
		{"EventsIgnored", s.EventsIgnored, 1},
		{"ResultsRecorded", s.ResultsRecorded, 1},
		{"DecodeErrors", s.DecodeErrors, 1},
		{"FactsSent", s.FactsSent, 1},
		{"FactsFailed", s.FactsFailed, 2},
		{"ReportsSent", s.ReportsSent, 3},
		{"ReportsFailed", s.ReportsFailed, 1},
		{"EncodeErrors", s.EncodeErrors, 1},
		{"ArchiveWriteSuccess", s.ArchiveWriteSuccess, 1},
		{"ArchiveWriteFailure", s.ArchiveWriteFailure, 1},
		{"NotifySuccess", s.NotifySuccess, 1},
		{"NotifyFailure", s.NotifyFailure, 1},
	}
	for _, tc := range checks {
		if tc.got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, tc.got, tc.want)
		}
	}
	if s.Disabled {
		t.Error("Disabled = true, want false")
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("run-42", "http://localhost:3000", "s3")
	s := c.Snapshot()

	if s.RunID != "run-42" {
		t.Errorf("RunID = %q, want %q", s.RunID, "run-42")
	}
	if s.ForemanURL != "http://localhost:3000" {
		t.Errorf("ForemanURL = %q, want %q", s.ForemanURL, "http://localhost:3000")
	}
	if s.ArchiveBackend != "s3" {
		t.Errorf("ArchiveBackend = %q, want %q", s.ArchiveBackend, "s3")
	}
}

func TestCollector_SetDisabled(t *testing.T) {
	c := NewCollector("run-001", "", "")
	c.SetDisabled()
	if !c.Snapshot().Disabled {
		t.Error("Disabled = false, want true")
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("run-001", "", "")
	c.IncReportsSent()

	s1 := c.Snapshot()

	c.IncReportsSent()
	c.IncReportsSent()

	if s1.ReportsSent != 1 {
		t.Errorf("s1.ReportsSent = %d, want 1 (snapshot should be frozen)", s1.ReportsSent)
	}
	if s2 := c.Snapshot(); s2.ReportsSent != 3 {
		t.Errorf("s2.ReportsSent = %d, want 3", s2.ReportsSent)
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.IncEventsReceived()
	c.IncEventsIgnored()
	c.IncResultsRecorded()
	c.IncDecodeErrors()
	c.IncFactsSent()
	c.IncFactsFailed()
	c.IncReportsSent()
	c.IncReportsFailed()
	c.IncEncodeErrors()
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteFailure()
	c.IncNotifySuccess()
	c.IncNotifyFailure()
	c.SetDisabled()

	s := c.Snapshot()
	if s.ReportsSent != 0 || s.Disabled {
		t.Errorf("nil collector snapshot = %+v, want zero", s)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("run-001", "", "")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncEventsReceived()
				c.IncReportsSent()
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)
	if s.EventsReceived != want {
		t.Errorf("EventsReceived = %d, want %d", s.EventsReceived, want)
	}
	if s.ReportsSent != want {
		t.Errorf("ReportsSent = %d, want %d", s.ReportsSent, want)
	}
}

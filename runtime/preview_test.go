package runtime

import (
	"context"
	"testing"

	"github.com/pithecene-io/runreport/ipc"
	"github.com/pithecene-io/runreport/report"
)

const lineStatsTwoHosts = `{"uuid":"u4","counter":4,"event":"playbook_on_stats","event_data":{"ok":{"h1":2,"h2":1},"changed":{"h1":1},"skipped":{"h2":1}}}`

func TestBuildPreview_BuildsDocumentsWithoutSending(t *testing.T) {
	dec := ipc.NewLineDecoder(jsonlStream(lineStart, lineGather, lineInstall, lineStatsTwoHosts))
	assembler := &report.Assembler{Now: fixedNow}

	preview, err := BuildPreview(t.Context(), dec, assembler, nil)
	if err != nil {
		t.Fatalf("BuildPreview: %v", err)
	}
	if !preview.HasStats {
		t.Error("HasStats = false, want true")
	}
	if preview.EventCount != 4 {
		t.Errorf("EventCount = %d, want 4", preview.EventCount)
	}
	if len(preview.Hosts) != 2 {
		t.Fatalf("hosts = %+v, want h1 and h2", preview.Hosts)
	}

	h1 := preview.Hosts[0]
	if h1.Host != "h1" || h1.Facts == nil || h1.Report == nil {
		t.Fatalf("h1 = %+v, want facts and report", h1)
	}
	if h1.Facts.Facts.AnsibleFacts["os"] != "linux" {
		t.Errorf("h1 facts = %v", h1.Facts.Facts.AnsibleFacts)
	}
	if got := len(h1.Report.ConfigReport.Logs); got != 2 {
		t.Errorf("h1 logs = %d, want 2", got)
	}
	if h1.Report.ConfigReport.Status.Applied != 1 {
		t.Errorf("h1 applied = %d, want 1", h1.Report.ConfigReport.Status.Applied)
	}

	h2 := preview.Hosts[1]
	if h2.Host != "h2" || h2.Facts != nil || h2.Report == nil {
		t.Fatalf("h2 = %+v, want report only", h2)
	}
	if len(h2.Report.ConfigReport.Logs) != 0 || h2.Report.ConfigReport.Status.Skipped != 1 {
		t.Errorf("h2 report = %+v", h2.Report.ConfigReport)
	}
}

func TestBuildPreview_NoStatsStillBuildsReports(t *testing.T) {
	dec := ipc.NewLineDecoder(jsonlStream(lineGather))

	preview, err := BuildPreview(t.Context(), dec, &report.Assembler{Now: fixedNow}, nil)
	if err != nil {
		t.Fatalf("BuildPreview: %v", err)
	}
	if preview.HasStats {
		t.Error("HasStats = true, want false")
	}
	if len(preview.Hosts) != 1 || preview.Hosts[0].Report == nil {
		t.Fatalf("hosts = %+v, want one report", preview.Hosts)
	}
	if preview.Hosts[0].Report.ConfigReport.Status != (report.ReportStatus{}) {
		t.Errorf("status = %+v, want zero", preview.Hosts[0].Report.ConfigReport.Status)
	}
}

func TestBuildPreview_EmptyStream(t *testing.T) {
	preview, err := BuildPreview(t.Context(), ipc.NewLineDecoder(jsonlStream()), nil, nil)
	if err != nil {
		t.Fatalf("BuildPreview: %v", err)
	}
	if preview.Hosts == nil || len(preview.Hosts) != 0 {
		t.Errorf("Hosts = %v, want empty non-nil", preview.Hosts)
	}
}

func TestBuildPreview_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := BuildPreview(ctx, ipc.NewLineDecoder(jsonlStream(lineGather)), nil, nil)
	if !IsCanceledError(err) {
		t.Errorf("err = %v, want canceled", err)
	}
}

package runtime

import (
	"context"

	"github.com/pithecene-io/runreport/ipc"
	"github.com/pithecene-io/runreport/log"
	"github.com/pithecene-io/runreport/report"
)

// PreviewHost holds the documents one host would be sent.
type PreviewHost struct {
	Host   string                 `json:"host"`
	Facts  *report.FactsDocument  `json:"facts,omitempty"`
	Report *report.ReportDocument `json:"report,omitempty"`
	// Error is set when the report cannot be built.
	Error string `json:"error,omitempty"`
}

// Preview is what a run would publish, built without a transport.
type Preview struct {
	EventCount int64         `json:"event_count"`
	HasStats   bool          `json:"has_stats"`
	Hosts      []PreviewHost `json:"hosts"`
}

// BuildPreview ingests a stream through an unconfigured Callback, so nothing
// is sent, then assembles every host's facts and report documents.
// Only a fatal stream error is returned; a missing stats event yields
// reports with zero summaries.
func BuildPreview(ctx context.Context, decoder ipc.Decoder, assembler *report.Assembler, logger *log.Logger) (*Preview, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	callback := NewCallback(Options{Logger: logger})
	state := report.NewRunState()
	ingestion := NewIngestionEngine(decoder, callback, state, logger, nil)
	if err := ingestion.Run(ctx); err != nil {
		return nil, err
	}

	stats := ingestion.Stats()
	byHost := map[string]*PreviewHost{}
	get := func(host string) *PreviewHost {
		if h, ok := byHost[host]; ok {
			return h
		}
		h := &PreviewHost{Host: host}
		byHost[host] = h
		return h
	}

	for _, host := range state.FactHosts() {
		get(host).Facts = assembler.BuildFactsDocument(state, host)
	}
	for _, host := range reportHosts(state, stats) {
		h := get(host)
		doc, err := assembler.BuildReport(state, host, stats.Summary(host))
		if err != nil {
			h.Error = err.Error()
			continue
		}
		h.Report = doc
	}

	hosts := make([]string, 0, len(byHost))
	for host := range byHost {
		hosts = append(hosts, host)
	}
	preview := &Preview{
		EventCount: ingestion.EventCount(),
		HasStats:   ingestion.HasTerminal(),
		Hosts:      make([]PreviewHost, 0, len(hosts)),
	}
	for _, host := range sortedUnique(hosts) {
		preview.Hosts = append(preview.Hosts, *byHost[host])
	}
	return preview, nil
}

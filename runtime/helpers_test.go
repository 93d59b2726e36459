package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/runreport/archive"
	"github.com/pithecene-io/runreport/foreman"
	"github.com/pithecene-io/runreport/log"
	"github.com/pithecene-io/runreport/report"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// capturedRequest is one POST received by the fake Foreman.
type capturedRequest struct {
	Path string
	Body map[string]any
}

// fakeForeman records every request and answers with a per-host status.
type fakeForeman struct {
	*httptest.Server

	mu       sync.Mutex
	requests  []capturedRequest
	status    map[string]int
	onRequest func()
}

func newFakeForeman(t *testing.T) *fakeForeman {
	t.Helper()
	f := &fakeForeman{status: make(map[string]int)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeForeman) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var doc map[string]any
	_ = json.Unmarshal(body, &doc)

	f.mu.Lock()
	f.requests = append(f.requests, capturedRequest{Path: r.URL.Path, Body: doc})
	code, ok := f.status[documentHost(doc)]
	hook := f.onRequest
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	if !ok {
		code = http.StatusCreated
	}
	w.WriteHeader(code)
}

// failHost makes every request about host answer with code.
func (f *fakeForeman) failHost(host string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[host] = code
}

func (f *fakeForeman) captured() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]capturedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// documentHost extracts the host a facts or report document describes.
func documentHost(doc map[string]any) string {
	if name, ok := doc["name"].(string); ok {
		return name
	}
	if cr, ok := doc["config_report"].(map[string]any); ok {
		host, _ := cr["host"].(string)
		return host
	}
	return ""
}

// recordingPublisher is an in-memory Publisher.
type recordingPublisher struct {
	facts   []*report.FactsDocument
	reports []*report.ReportDocument
	calls   []string
	fail    map[string]error
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{fail: make(map[string]error)}
}

func (p *recordingPublisher) PostFacts(_ context.Context, doc *report.FactsDocument) error {
	p.calls = append(p.calls, "facts:"+doc.Name)
	if err := p.fail[doc.Name]; err != nil {
		return err
	}
	p.facts = append(p.facts, doc)
	return nil
}

func (p *recordingPublisher) PostReport(_ context.Context, doc *report.ReportDocument) error {
	p.calls = append(p.calls, "report:"+doc.ConfigReport.Host)
	if err := p.fail[doc.ConfigReport.Host]; err != nil {
		return err
	}
	p.reports = append(p.reports, doc)
	return nil
}

func (p *recordingPublisher) FactsURL() string   { return "http://foreman.test" + foreman.FactsPath }
func (p *recordingPublisher) ReportsURL() string { return "http://foreman.test" + foreman.ReportsPath }

// factoryFor returns a TransportFactory that hands out pub and counts calls.
func factoryFor(pub Publisher, calls *int) TransportFactory {
	return func(foreman.Config) (Publisher, error) {
		*calls++
		return pub, nil
	}
}

// captureArchiver keeps every archived record.
type captureArchiver struct {
	records []*archive.Record
	err     error
}

func (a *captureArchiver) Write(_ context.Context, rec *archive.Record) error {
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

func (a *captureArchiver) Close() error { return nil }

var errArchiveDown = errors.New("archive down")

// bufferLogger returns a logger writing JSON lines into a buffer.
func bufferLogger() (*log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return log.NewLoggerWithWriter(nil, &buf, zapcore.DebugLevel), &buf
}

// logMessages decodes the message field of every logged line.
func logMessages(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	var msgs []string
	dec := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	for dec.More() {
		var entry map[string]any
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		msg, _ := entry["message"].(string)
		msgs = append(msgs, msg)
	}
	return msgs
}

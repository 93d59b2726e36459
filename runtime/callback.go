package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/pithecene-io/runreport/archive"
	"github.com/pithecene-io/runreport/foreman"
	"github.com/pithecene-io/runreport/log"
	"github.com/pithecene-io/runreport/metrics"
	"github.com/pithecene-io/runreport/report"
	"github.com/pithecene-io/runreport/types"
)

// State is the lifecycle state of a Callback.
//
//	Uninitialized -> Configured -> Active
//	                            -> Disabled (terminal)
type State int

const (
	// StateUninitialized is the state before Configure.
	StateUninitialized State = iota
	// StateConfigured is the transient state while settings are checked.
	StateConfigured
	// StateActive means publishing will send requests.
	StateActive
	// StateDisabled means publishing is a no-op for the rest of the run.
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateActive:
		return "active"
	case StateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrAlreadyConfigured is returned by a second Configure call.
var ErrAlreadyConfigured = errors.New("foreman callback already configured")

// disableSuffix ends every disable warning.
const disableSuffix = "Disabling the Foreman callback plugin."

// DisabledError records why publishing was disabled.
type DisabledError struct {
	// Reason is the human-readable cause, ending with a period.
	Reason string
	// Err is the underlying error, if any.
	Err error
}

func (e *DisabledError) Error() string {
	if e.Reason == "" {
		return disableSuffix
	}
	return e.Reason + " " + disableSuffix
}

func (e *DisabledError) Unwrap() error {
	return e.Err
}

// Settings is the transport configuration, frozen by Configure.
type Settings struct {
	// URL is the Foreman base URL.
	URL string
	// ClientCert is the client certificate path, checked for https URLs.
	ClientCert string
	// ClientKey is the client key path, checked for https URLs.
	ClientKey string
	// Verify is the raw verification setting: a boolean spelling or a CA
	// bundle path. Empty verifies against the system roots.
	Verify string
	// Disable forces the callback off.
	Disable bool
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// Reporter is the reporter tag placed in config reports.
	Reporter string
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		URL:        foreman.DefaultURL,
		ClientCert: foreman.DefaultClientCert,
		ClientKey:  foreman.DefaultClientKey,
		Verify:     "1",
		Timeout:    foreman.DefaultTimeout,
		Reporter:   types.Reporter,
	}
}

// Publisher sends documents to Foreman.
type Publisher interface {
	PostFacts(ctx context.Context, doc *report.FactsDocument) error
	PostReport(ctx context.Context, doc *report.ReportDocument) error
	FactsURL() string
	ReportsURL() string
}

// TransportFactory builds a Publisher from transport configuration.
type TransportFactory func(cfg foreman.Config) (Publisher, error)

// HTTPTransport is the TransportFactory backed by net/http.
func HTTPTransport(cfg foreman.Config) (Publisher, error) {
	return foreman.New(cfg)
}

// Options wires a Callback to its collaborators. Only Transport is needed
// to publish; everything else is optional.
type Options struct {
	// Transport builds the Foreman publisher. Nil disables publishing.
	Transport TransportFactory
	// WrapTransport decorates the HTTP round tripper (tracing).
	WrapTransport func(http.RoundTripper) http.RoundTripper
	// Logger receives warnings. Nil discards.
	Logger *log.Logger
	// Collector receives counters. Nil records nothing.
	Collector *metrics.Collector
	// Archiver keeps a copy of every document. Nil skips archiving.
	Archiver archive.Archiver
	// Now overrides the clock for reported_at and elapsed time.
	Now func() time.Time
}

// Delivery is the outcome of one document.
type Delivery struct {
	// Kind is archive.KindFacts or archive.KindReport.
	Kind string `json:"kind"`
	// Host is the host the document describes.
	Host string `json:"host"`
	// URL is the endpoint the document was sent to.
	URL string `json:"url"`
	// Error is the failure text; empty on success.
	Error string `json:"error,omitempty"`
}

// OK reports whether the document was accepted.
func (d Delivery) OK() bool { return d.Error == "" }

// Callback forwards run results to Foreman.
//
// It is driven from a single goroutine: Handle, PublishFacts and
// PublishReports block on each HTTP call in turn.
type Callback struct {
	opts      Options
	logger    *log.Logger
	state     State
	settings  Settings
	publisher Publisher
	assembler *report.Assembler
	disabled  *DisabledError

	deliveries []Delivery
}

// NewCallback creates an unconfigured callback.
func NewCallback(opts Options) *Callback {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Callback{
		opts:   opts,
		logger: logger,
		state:  StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (c *Callback) State() State { return c.state }

// Settings returns the frozen settings. Zero before Configure.
func (c *Callback) Settings() Settings { return c.settings }

// DisabledReason returns the *DisabledError if the callback is disabled,
// nil otherwise.
func (c *Callback) DisabledReason() error {
	if c.disabled == nil {
		return nil
	}
	return c.disabled
}

// Deliveries returns the outcome of every document sent so far.
func (c *Callback) Deliveries() []Delivery {
	return slices.Clone(c.deliveries)
}

// Configure freezes the settings and decides between Active and Disabled.
// Problems with the settings never fail the call: they disable publishing
// and log a single warning. The only error is ErrAlreadyConfigured.
func (c *Callback) Configure(s Settings) error {
	if c.state != StateUninitialized {
		return ErrAlreadyConfigured
	}
	c.settings = withDefaults(s)
	c.state = StateConfigured
	c.assembler = &report.Assembler{Reporter: c.settings.Reporter, Now: c.opts.Now}

	if c.settings.Disable {
		c.disable("Callback disabled by environment.", nil)
		return nil
	}

	verify := foreman.ParseVerify(c.settings.Verify)
	cfg := foreman.Config{
		URL:           c.settings.URL,
		ClientCert:    c.settings.ClientCert,
		ClientKey:     c.settings.ClientKey,
		Verify:        verify,
		Timeout:       c.settings.Timeout,
		WrapTransport: c.opts.WrapTransport,
	}

	if cfg.IsHTTPS() {
		if !fileExists(cfg.ClientCert) {
			c.disable(fmt.Sprintf("FOREMAN_SSL_CERT %s not found.", cfg.ClientCert), nil)
			return nil
		}
		if !fileExists(cfg.ClientKey) {
			c.disable(fmt.Sprintf("FOREMAN_SSL_KEY %s not found.", cfg.ClientKey), nil)
			return nil
		}
	}

	if c.opts.Transport == nil {
		c.disable("No HTTP transport is available.", nil)
		return nil
	}
	pub, err := c.opts.Transport(cfg)
	if err != nil {
		c.disable(fmt.Sprintf("Cannot build the HTTP transport: %v.", err), err)
		return nil
	}

	if !verify.Enabled {
		c.logger.Warn(fmt.Sprintf("SSL verification of %s disabled", c.settings.URL), map[string]any{
			"url": c.settings.URL,
		})
	}

	c.publisher = pub
	c.state = StateActive
	c.logger.Debug("foreman callback active", map[string]any{
		"url":    c.settings.URL,
		"verify": verify.String(),
	})
	return nil
}

func withDefaults(s Settings) Settings {
	d := DefaultSettings()
	if s.URL == "" {
		s.URL = d.URL
	}
	if s.ClientCert == "" {
		s.ClientCert = d.ClientCert
	}
	if s.ClientKey == "" {
		s.ClientKey = d.ClientKey
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	if s.Reporter == "" {
		s.Reporter = d.Reporter
	}
	return s
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// disable moves to the terminal Disabled state and warns once.
func (c *Callback) disable(reason string, err error) {
	c.state = StateDisabled
	c.disabled = &DisabledError{Reason: reason, Err: err}
	c.opts.Collector.SetDisabled()
	c.logger.Warn(c.disabled.Error(), map[string]any{"url": c.settings.URL})
}

// active is checked at the top of every publish operation.
func (c *Callback) active() bool {
	return c.state == StateActive
}

// Handle dispatches one orchestrator event.
// Task results are recorded even while disabled; the stats event publishes
// facts and then reports. Publishing ignores cancellation of ctx: every
// host gets its attempt, bounded only by the transport timeout.
// Unknown kinds are ignored.
func (c *Callback) Handle(ctx context.Context, state *report.RunState, ev types.Event) error {
	switch {
	case ev.Kind.IsTaskResult():
		if ev.Result == nil {
			return fmt.Errorf("%s event carries no result", ev.Kind)
		}
		state.RecordResult(ev.Result.Task, ev.Result.Host, ev.Result.Result)
		c.opts.Collector.IncResultsRecorded()
	case ev.Kind == types.EventPlaybookStats:
		pctx := context.WithoutCancel(ctx)
		c.PublishFacts(pctx, state)
		c.PublishReports(pctx, state, ev.Stats)
	default:
		c.opts.Collector.IncEventsIgnored()
	}
	return nil
}

// PublishFacts sends one facts document per host with recorded facts,
// in host name order. Failures are logged and do not stop other hosts.
func (c *Callback) PublishFacts(ctx context.Context, state *report.RunState) {
	if !c.active() {
		return
	}
	target := c.publisher.FactsURL()
	for _, host := range state.FactHosts() {
		doc := c.assembler.BuildFactsDocument(state, host)
		err := c.publisher.PostFacts(ctx, doc)
		if err != nil {
			c.opts.Collector.IncFactsFailed()
			c.warnFailure("facts", host, target, err)
		} else {
			c.opts.Collector.IncFactsSent()
		}
		c.finish(ctx, archive.KindFacts, host, target, doc, err)
	}
}

// PublishReports sends one config report per host, in host name order.
// Hosts are those with buffered items plus those listed in stats; a host
// absent from stats gets a zero summary. Each host's items are cleared
// after its attempt whatever the outcome.
func (c *Callback) PublishReports(ctx context.Context, state *report.RunState, stats *types.RunStats) {
	if !c.active() {
		return
	}
	target := c.publisher.ReportsURL()
	for _, host := range reportHosts(state, stats) {
		var archived any
		doc, err := c.assembler.BuildReport(state, host, stats.Summary(host))
		if err == nil {
			archived = doc
			err = c.publisher.PostReport(ctx, doc)
		}
		if err != nil {
			c.opts.Collector.IncReportsFailed()
			c.warnFailure("report", host, target, err)
		} else {
			c.opts.Collector.IncReportsSent()
		}
		c.finish(ctx, archive.KindReport, host, target, archived, err)
		state.ClearItems(host)
	}
}

func reportHosts(state *report.RunState, stats *types.RunStats) []string {
	return sortedUnique(append(state.ItemHosts(), stats.HostNames()...))
}

func (c *Callback) warnFailure(what, host, target string, err error) {
	if errors.Is(err, report.ErrEncodeResult) || errors.Is(err, foreman.ErrEncode) {
		c.opts.Collector.IncEncodeErrors()
	}
	c.logger.Warn(fmt.Sprintf("Sending %s to Foreman at %s failed for %s: %v", what, c.settings.URL, host, err), map[string]any{
		"host":  host,
		"url":   target,
		"error": err.Error(),
	})
}

// finish records the delivery and archives the document.
func (c *Callback) finish(ctx context.Context, kind, host, target string, doc any, err error) {
	d := Delivery{Kind: kind, Host: host, URL: target}
	if err != nil {
		d.Error = err.Error()
	}
	c.deliveries = append(c.deliveries, d)

	if c.opts.Archiver == nil {
		return
	}
	rec := &archive.Record{
		Kind:      kind,
		Host:      host,
		URL:       target,
		Delivered: d.OK(),
		Error:     d.Error,
		Document:  doc,
	}
	if c.opts.Now != nil {
		rec.ArchivedAt = c.opts.Now()
	}
	if archErr := c.opts.Archiver.Write(ctx, rec); archErr != nil {
		c.logger.Warn("archiving document failed", map[string]any{
			"kind":  kind,
			"host":  host,
			"error": archErr.Error(),
		})
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/runreport/adapter"
	"github.com/pithecene-io/runreport/adapter/redis"
	"github.com/pithecene-io/runreport/adapter/webhook"
	"github.com/pithecene-io/runreport/archive"
	"github.com/pithecene-io/runreport/cli/config"
	"github.com/pithecene-io/runreport/iox"
	"github.com/pithecene-io/runreport/ipc"
	"github.com/pithecene-io/runreport/log"
	"github.com/pithecene-io/runreport/metrics"
	"github.com/pithecene-io/runreport/otel"
	"github.com/pithecene-io/runreport/runtime"
	"github.com/pithecene-io/runreport/types"
)

// shutdownTimeout bounds span flushing at exit.
const shutdownTimeout = 5 * time.Second

// RunCommand returns the run command.
// Run consumes one job event stream and publishes to Foreman at its end.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Consume a job event stream and publish facts and reports to Foreman",
		Flags: append([]cli.Flag{
			// Input flags
			&cli.StringFlag{
				Name:  "events",
				Usage: "Path to the job event stream, - for stdin",
				Value: "-",
			},
			&cli.StringFlag{
				Name:  "format-in",
				Usage: "Event stream format: jsonl or msgpack",
				Value: string(ipc.FormatJSONLines),
			},
			ConfigFlag,
			EnvFileFlag,
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (default: random UUID)",
			},
			&cli.StringFlag{
				Name:  "playbook",
				Usage: "Playbook name, for logs and notifications",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
			// Foreman flags
			&cli.StringFlag{
				Name:  "foreman-url",
				Usage: "Foreman base URL (default: FOREMAN_URL or http://localhost:3000)",
			},
			&cli.StringFlag{
				Name:  "ssl-cert",
				Usage: "Client certificate path for https URLs",
			},
			&cli.StringFlag{
				Name:  "ssl-key",
				Usage: "Client key path for https URLs",
			},
			&cli.StringFlag{
				Name:  "ssl-verify",
				Usage: "Server verification: 1/0 or a CA bundle path",
			},
			&cli.BoolFlag{
				Name:  "disable",
				Usage: "Disable publishing for this run",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-request timeout for Foreman",
			},
			&cli.StringFlag{
				Name:  "reporter",
				Usage: "Reporter tag placed in config reports",
			},
			// Output flags
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a JSON run report to this path, - for stderr",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "metrics-textfile",
				Usage: "Write run metrics in Prometheus text format to this path",
			},
			&cli.StringFlag{
				Name:  "otel-endpoint",
				Usage: "OTLP/HTTP endpoint for tracing Foreman requests",
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Run completion adapter: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Adapter endpoint (webhook URL or redis://host:port)",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel",
			},
			&cli.StringFlag{
				Name:    "adapter-secret",
				Usage:   "Webhook HMAC-SHA256 signing secret",
				EnvVars: []string{"RUNREPORT_WEBHOOK_SECRET"},
			},
			&cli.StringSliceFlag{
				Name:  "adapter-header",
				Usage: "Webhook header as Key=Value (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Per-publish adapter timeout",
				Value: webhook.DefaultTimeout,
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Adapter retry attempts",
				Value: webhook.DefaultRetries,
			},
		}, ArchiveFlags()...),
		Action: runAction,
	}
}

// runChoice is the fully resolved run configuration.
type runChoice struct {
	runID      string
	playbook   string
	events     string
	format     ipc.Format
	settings   runtime.Settings
	logLevel   zapcore.Level
	reportPath string
	quiet      bool

	archive *archiveChoice
	adapter *adapterChoice

	metricsTextfile string
	otelEndpoint    string
}

// archiveChoice holds parsed archive configuration.
type archiveChoice struct {
	target  archive.Target
	dataset string
}

// adapterChoice holds parsed adapter configuration.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	secret      string
	headers     map[string]string
	timeout     time.Duration
	retries     int
}

func runAction(c *cli.Context) error {
	if path := c.String("env-file"); path != "" {
		if err := config.LoadEnvFile(path); err != nil {
			return invalidConfig(err)
		}
	}

	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return invalidConfig(err)
	}

	env, err := config.LoadForemanEnv(c.Context, nil)
	if err != nil {
		return invalidConfig(err)
	}

	choice, err := resolveRunChoice(c, cfg, env)
	if err != nil {
		return invalidConfig(err)
	}

	events, err := openEvents(choice.events)
	if err != nil {
		return invalidConfig(err)
	}
	defer iox.DiscardClose(events)

	runMeta := &types.RunMeta{
		RunID:    choice.runID,
		Playbook: choice.playbook,
	}
	logger := log.NewLoggerWithWriter(runMeta, os.Stderr, choice.logLevel)
	defer iox.DiscardErr(logger.Sync)

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	tracing, err := otel.Init(ctx, choice.otelEndpoint, types.Version)
	if err != nil {
		return invalidConfig(err)
	}
	defer shutdownTracing(tracing, logger)

	startTime := time.Now()

	var archiver archive.Archiver
	var archivePath, archiveBackend string
	if choice.archive != nil {
		a, err := archive.New(ctx, archive.Config{
			Dataset: choice.archive.dataset,
			Day:     archive.DeriveDay(startTime),
			RunID:   choice.runID,
		}, choice.archive.target)
		if err != nil {
			return invalidConfig(fmt.Errorf("archive: %w", err))
		}
		defer iox.DiscardClose(a)
		archiver = a
		archivePath = choice.archive.target.Location(choice.archive.dataset)
		archiveBackend = choice.archive.target.Backend
	}

	var notifier adapter.Adapter
	if choice.adapter != nil {
		notifier, err = buildAdapter(choice.adapter, tracing.WrapTransport(nil))
		if err != nil {
			return invalidConfig(fmt.Errorf("adapter: %w", err))
		}
		defer iox.DiscardClose(notifier)
	}

	collector := metrics.NewCollector(choice.runID, choice.settings.URL, archiveBackend)

	orchestrator, err := runtime.NewRunOrchestrator(&runtime.RunConfig{
		RunMeta:  runMeta,
		Events:   events,
		Format:   choice.format,
		Settings: choice.settings,
		Callback: runtime.Options{
			WrapTransport: tracing.WrapTransport,
			Archiver:      archiver,
		},
		Notifier:    notifier,
		ArchivePath: archivePath,
		Logger:      logger,
		Collector:   collector,
	})
	if err != nil {
		return invalidConfig(err)
	}

	result, err := orchestrator.Execute(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("execution failed: %v", err), runtime.ExitCodeInvalidConfig)
	}
	exitCode := runtime.ExitCode(result.Outcome.Status)

	snap := collector.Snapshot()
	if choice.metricsTextfile != "" {
		if err := snap.WriteTextfile(choice.metricsTextfile); err != nil {
			logger.Warn("writing metrics textfile failed", map[string]any{
				"path":  choice.metricsTextfile,
				"error": err.Error(),
			})
		}
	}
	if choice.reportPath != "" {
		report := runtime.BuildRunReport(result, snap, choice.settings.URL, exitCode)
		if err := runtime.WriteRunReport(report, choice.reportPath); err != nil {
			logger.Warn("writing run report failed", map[string]any{
				"path":  choice.reportPath,
				"error": err.Error(),
			})
		}
	}

	if !choice.quiet {
		printRunResult(os.Stdout, result, choice.settings.URL)
	}

	return cli.Exit("", exitCode)
}

func invalidConfig(err error) error {
	return cli.Exit(err.Error(), runtime.ExitCodeInvalidConfig)
}

// loadConfig reads and validates the config file. An empty path yields nil.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// openEvents opens the event stream. "-" is stdin, which is never closed.
func openEvents(path string) (io.ReadCloser, error) {
	rc, err := iox.OpenInput(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("event stream not found: %s", path)
		}
		return nil, fmt.Errorf("cannot open event stream: %w", err)
	}
	return rc, nil
}

func shutdownTracing(tracing *otel.Tracing, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := tracing.Shutdown(ctx); err != nil {
		logger.Warn("flushing traces failed", map[string]any{
			"error": err.Error(),
		})
	}
}

// resolveRunChoice merges flags, environment, config file and defaults,
// highest precedence first.
func resolveRunChoice(c *cli.Context, cfg *config.Config, env *config.ForemanEnv) (*runChoice, error) {
	choice := &runChoice{
		runID:      c.String("run-id"),
		playbook:   resolveString(c, "playbook", configVal(cfg, func(c *config.Config) string { return c.Playbook })),
		events:     c.String("events"),
		reportPath: c.String("report"),
		quiet:      c.Bool("quiet"),
		metricsTextfile: resolveString(c, "metrics-textfile",
			configVal(cfg, func(c *config.Config) string { return c.Metrics.Textfile })),
		otelEndpoint: resolveString(c, "otel-endpoint",
			configVal(cfg, func(c *config.Config) string { return c.Tracing.Endpoint })),
	}
	if choice.runID == "" {
		choice.runID = uuid.NewString()
	}

	format, err := ipc.ParseFormat(resolveString(c, "format-in",
		configVal(cfg, func(c *config.Config) string { return c.Events.Format })))
	if err != nil {
		return nil, fmt.Errorf("invalid --format-in: %w", err)
	}
	choice.format = format

	level, err := log.ParseLevel(resolveString(c, "log-level",
		configVal(cfg, func(c *config.Config) string { return c.Log.Level })))
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	choice.logLevel = level

	settings, err := resolveSettings(c, cfg, env)
	if err != nil {
		return nil, err
	}
	choice.settings = settings

	archived, err := resolveArchive(c, cfg)
	if err != nil {
		return nil, err
	}
	choice.archive = archived

	adapterType := resolveString(c, "adapter", configVal(cfg, func(c *config.Config) string { return c.Adapter.Type }))
	if adapterType != "" {
		ac, err := parseAdapterConfigWithPrecedence(c, cfg, adapterType)
		if err != nil {
			return nil, err
		}
		choice.adapter = ac
	}

	return choice, nil
}

// resolveSettings builds the Foreman settings. The environment overlays the
// config file; flags overlay both.
func resolveSettings(c *cli.Context, cfg *config.Config, env *config.ForemanEnv) (runtime.Settings, error) {
	var fc config.ForemanConfig
	if cfg != nil {
		fc = cfg.Foreman
	}
	if env != nil {
		if err := env.Apply(&fc); err != nil {
			return runtime.Settings{}, err
		}
	}

	s := runtime.DefaultSettings()
	if v := resolveString(c, "foreman-url", fc.URL); v != "" {
		s.URL = v
	}
	if v := resolveString(c, "ssl-cert", fc.ClientCert); v != "" {
		s.ClientCert = v
	}
	if v := resolveString(c, "ssl-key", fc.ClientKey); v != "" {
		s.ClientKey = v
	}
	if v := resolveString(c, "ssl-verify", fc.Verify); v != "" {
		s.Verify = v
	}
	if v := resolveString(c, "reporter", fc.Reporter); v != "" {
		s.Reporter = v
	}
	if d := resolveDuration(c, "timeout", fc.Timeout.Duration); d > 0 {
		s.Timeout = d
	}
	s.Disable = resolveBool(c, "disable", fc.Disable)
	return s, nil
}

// resolveArchive returns nil when no archive path is configured.
func resolveArchive(c *cli.Context, cfg *config.Config) (*archiveChoice, error) {
	var ac config.ArchiveConfig
	if cfg != nil {
		ac = cfg.Archive
	}

	path := resolveString(c, "archive-path", ac.Path)
	if path == "" {
		return nil, nil
	}

	backend := resolveString(c, "archive-backend", ac.Backend)
	switch backend {
	case "fs", "s3":
	default:
		return nil, fmt.Errorf("invalid --archive-backend %q (must be fs or s3)", backend)
	}

	return &archiveChoice{
		target: archive.Target{
			Backend:      backend,
			Path:         path,
			Region:       resolveString(c, "archive-region", ac.Region),
			Endpoint:     resolveString(c, "archive-endpoint", ac.Endpoint),
			UsePathStyle: resolveBool(c, "archive-s3-path-style", ac.S3PathStyle),
		},
		dataset: resolveString(c, "archive-dataset", ac.Dataset),
	}, nil
}

// parseAdapterConfigWithPrecedence resolves adapter settings: flags win,
// then the config file. Config headers are merged under flag headers.
func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *config.Config, adapterType string) (*adapterChoice, error) {
	ac := &adapterChoice{
		adapterType: adapterType,
		url:         resolveString(c, "adapter-url", configVal(cfg, func(c *config.Config) string { return c.Adapter.URL })),
		channel:     resolveString(c, "adapter-channel", configVal(cfg, func(c *config.Config) string { return c.Adapter.Channel })),
		secret:      resolveString(c, "adapter-secret", configVal(cfg, func(c *config.Config) string { return c.Adapter.Secret })),
		headers:     map[string]string{},
		retries:     c.Int("adapter-retries"),
	}

	var cfgTimeout time.Duration
	if cfg != nil {
		cfgTimeout = cfg.Adapter.Timeout.Duration
		if !c.IsSet("adapter-retries") && cfg.Adapter.Retries != nil {
			ac.retries = *cfg.Adapter.Retries
		}
		for k, v := range cfg.Adapter.Headers {
			ac.headers[k] = v
		}
	}
	ac.timeout = resolveDuration(c, "adapter-timeout", cfgTimeout)

	cliHeaders, err := parseHeaders(c.StringSlice("adapter-header"))
	if err != nil {
		return nil, err
	}
	for k, v := range cliHeaders {
		ac.headers[k] = v
	}

	switch adapterType {
	case "webhook", "redis":
		if ac.url == "" {
			return nil, fmt.Errorf("--adapter-url is required when --adapter=%s", adapterType)
		}
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", adapterType)
	}
	if ac.retries < 0 {
		return nil, fmt.Errorf("--adapter-retries must be >= 0, got %d", ac.retries)
	}

	return ac, nil
}

// parseHeaders parses Key=Value pairs.
func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		key, value, ok := strings.Cut(h, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q (expected Key=Value)", h)
		}
		headers[key] = value
	}
	return headers, nil
}

// buildAdapter creates the adapter for ac. rt is the webhook round tripper;
// nil uses the default transport.
func buildAdapter(ac *adapterChoice, rt http.RoundTripper) (adapter.Adapter, error) {
	switch ac.adapterType {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:       ac.url,
			Headers:   ac.headers,
			Secret:    ac.secret,
			Timeout:   ac.timeout,
			Retries:   ac.retries,
			Transport: rt,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     ac.url,
			Channel: ac.channel,
			Timeout: ac.timeout,
			Retries: ac.retries,
		})
	default:
		return nil, errors.New("unknown adapter type: " + ac.adapterType)
	}
}

// configVal reads a string from cfg, or "" when cfg is nil.
func configVal(cfg *config.Config, fn func(*config.Config) string) string {
	if cfg == nil {
		return ""
	}
	return fn(cfg)
}

// resolveString returns the flag value when set on the command line, then
// the config value, then the flag default.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if cfgVal != "" {
		return cfgVal
	}
	return c.String(name)
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	if cfgVal > 0 {
		return cfgVal
	}
	return c.Duration(name)
}

func printRunResult(w io.Writer, result *runtime.RunResult, foremanURL string) {
	factsSent, factsFailed := result.Counts(archive.KindFacts)
	reportsSent, reportsFailed := result.Counts(archive.KindReport)

	fmt.Fprintf(w, "\nrun_id=%s, outcome=%s, duration=%s\n",
		result.RunMeta.RunID,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)

	fmt.Fprintf(w, "\n=== Run Result ===\n")
	fmt.Fprintf(w, "Run ID:       %s\n", result.RunMeta.RunID)
	if result.RunMeta.Playbook != "" {
		fmt.Fprintf(w, "Playbook:     %s\n", result.RunMeta.Playbook)
	}
	fmt.Fprintf(w, "Outcome:      %s\n", result.Outcome.Status)
	fmt.Fprintf(w, "Message:      %s\n", result.Outcome.Message)
	fmt.Fprintf(w, "Duration:     %s\n", result.Duration)
	fmt.Fprintf(w, "Events:       %d\n", result.EventCount)
	fmt.Fprintf(w, "Hosts:        %d\n", len(result.Hosts))

	fmt.Fprintf(w, "\n=== Foreman ===\n")
	fmt.Fprintf(w, "URL:            %s\n", foremanURL)
	fmt.Fprintf(w, "State:          %s\n", result.State)
	fmt.Fprintf(w, "Facts Sent:     %d\n", factsSent)
	fmt.Fprintf(w, "Facts Failed:   %d\n", factsFailed)
	fmt.Fprintf(w, "Reports Sent:   %d\n", reportsSent)
	fmt.Fprintf(w, "Reports Failed: %d\n", reportsFailed)

	var failed []runtime.Delivery
	for _, d := range result.Deliveries {
		if !d.OK() {
			failed = append(failed, d)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(w, "\n=== Failed Deliveries ===\n")
		for _, d := range failed {
			fmt.Fprintf(w, "  - %s %s: %s\n", d.Kind, d.Host, d.Error)
		}
	}

	if result.NotifyError != "" {
		fmt.Fprintf(w, "\n=== Notification ===\n")
		fmt.Fprintf(w, "Error:        %s\n", result.NotifyError)
	}
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/runreport/ipc"
)

// Config represents a runreport.yaml configuration file.
// All values are optional and act as defaults for runreport run flags.
// Environment variables override config values; CLI flags override both.
type Config struct {
	Playbook string        `yaml:"playbook"`
	Events   EventsConfig  `yaml:"events"`
	Foreman  ForemanConfig `yaml:"foreman"`
	Log      LogConfig     `yaml:"log"`
	Archive  ArchiveConfig `yaml:"archive"`
	Adapter  AdapterConfig `yaml:"adapter"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Tracing  TracingConfig `yaml:"tracing"`
}

// EventsConfig describes the job event stream.
type EventsConfig struct {
	// Format is jsonl or msgpack.
	Format string `yaml:"format"`
}

// ForemanConfig holds the Foreman transport settings.
type ForemanConfig struct {
	URL        string   `yaml:"url"`
	ClientCert string   `yaml:"client_cert"`
	ClientKey  string   `yaml:"client_key"`
	Verify     string   `yaml:"verify"`
	Disable    bool     `yaml:"disable"`
	Timeout    Duration `yaml:"timeout,omitempty"`
	Reporter   string   `yaml:"reporter"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ArchiveConfig holds document archive settings.
type ArchiveConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Textfile is a Prometheus textfile collector path.
	Textfile string `yaml:"textfile"`
}

// TracingConfig holds OTLP tracing settings.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP endpoint. Empty disables tracing.
	Endpoint string `yaml:"endpoint"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated values. Empty values are always accepted.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ipc.ParseFormat(c.Events.Format); err != nil {
		errs = append(errs, fmt.Errorf("events.format: %w", err))
	}
	switch c.Archive.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("archive.backend: unknown backend %q (valid: fs, s3)", c.Archive.Backend))
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		errs = append(errs, fmt.Errorf("adapter.type: unknown adapter %q (valid: webhook, redis)", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, errors.New("adapter.retries: must be >= 0"))
	}
	if c.Foreman.Timeout.Duration < 0 {
		errs = append(errs, errors.New("foreman.timeout: must be >= 0"))
	}
	return errors.Join(errs...)
}

// ParseBool interprets the boolean spellings accepted in the environment:
// 1/0, true/false, yes/no, on/off, y/n, t/f (case-insensitive).
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on", "y", "t":
		return true, nil
	case "0", "false", "no", "off", "n", "f", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

// Package foreman implements the HTTP transport to a Foreman server.
//
// Two fixed endpoints are used: facts go to /api/v2/hosts/facts and config
// reports go to /api/v2/config_reports. Each call is a single JSON POST;
// there are no retries. Any 2xx is success, and the response body is
// drained and ignored.
package foreman

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pithecene-io/runreport/iox"
	"github.com/pithecene-io/runreport/report"
)

// Defaults applied when a setting is not provided.
const (
	DefaultURL        = "http://localhost:3000"
	DefaultClientCert = "/etc/foreman/client_cert.pem"
	DefaultClientKey  = "/etc/foreman/client_key.pem"
	DefaultTimeout    = 30 * time.Second
)

// Endpoint paths relative to the base URL.
const (
	FactsPath   = "/api/v2/hosts/facts"
	ReportsPath = "/api/v2/config_reports"
)

// ErrEncode is returned when a document cannot be serialized.
var ErrEncode = errors.New("foreman: cannot encode document")

// Config configures the Foreman transport.
type Config struct {
	// URL is the Foreman base URL (required).
	URL string
	// ClientCert is the client certificate path, used for https URLs.
	ClientCert string
	// ClientKey is the client key path, used for https URLs.
	ClientKey string
	// Verify is the server certificate verification mode.
	Verify Verify
	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration
	// WrapTransport optionally decorates the HTTP round tripper (tracing).
	WrapTransport func(http.RoundTripper) http.RoundTripper
}

// IsHTTPS reports whether the base URL uses TLS.
func (c Config) IsHTTPS() bool {
	return strings.HasPrefix(strings.ToLower(c.URL), "https://")
}

// Client posts documents to Foreman.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a Foreman client from the given config.
// For https URLs the client certificate pair and CA bundle are loaded here,
// so a bad file is reported once, before any request.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("foreman client requires a URL")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("foreman: invalid URL %q: %w", cfg.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("foreman: unsupported URL scheme %q", u.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.IsHTTPS() {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	var rt http.RoundTripper = transport
	if cfg.WrapTransport != nil {
		rt = cfg.WrapTransport(rt)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout, Transport: rt},
	}, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		//nolint:gosec // verification can be disabled explicitly by configuration
		InsecureSkipVerify: !cfg.Verify.Enabled,
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		pair, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("foreman: load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{pair}
	}

	if cfg.Verify.Enabled && cfg.Verify.CABundle != "" {
		pem, err := os.ReadFile(cfg.Verify.CABundle)
		if err != nil {
			return nil, fmt.Errorf("foreman: read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("foreman: no certificates found in CA bundle %s", cfg.Verify.CABundle)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// URL returns the base URL.
func (c *Client) URL() string { return c.baseURL }

// FactsURL returns the facts endpoint.
func (c *Client) FactsURL() string { return c.baseURL + FactsPath }

// ReportsURL returns the config reports endpoint.
func (c *Client) ReportsURL() string { return c.baseURL + ReportsPath }

// PostFacts sends one host's facts document.
func (c *Client) PostFacts(ctx context.Context, doc *report.FactsDocument) error {
	return c.post(ctx, c.FactsURL(), doc)
}

// PostReport sends one host's config report.
func (c *Client) PostReport(ctx context.Context, doc *report.ReportDocument) error {
	return c.post(ctx, c.ReportsURL(), doc)
}

func (c *Client) post(ctx context.Context, target string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return c.doRequest(ctx, target, body)
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// doRequest performs a single HTTP POST and returns nil on 2xx.
func (c *Client) doRequest(ctx context.Context, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, URL: target}
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

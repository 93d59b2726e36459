// Package webhook notifies run completion with an HTTP POST.
//
// Requests carry the run id and event type as headers. When a secret is
// configured the body is signed with HMAC-SHA256 in X-Runreport-Signature.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/runreport/adapter"
	"github.com/pithecene-io/runreport/iox"
	"github.com/pithecene-io/runreport/types"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
)

// Request headers set on every delivery.
const (
	HeaderEvent     = "X-Runreport-Event"
	HeaderRunID     = "X-Runreport-Run-Id"
	HeaderSignature = "X-Runreport-Signature"
)

// Config configures the webhook notifier.
type Config struct {
	// URL receives the POST. Required.
	URL string
	// Headers are added after the standard ones and may override them.
	Headers map[string]string
	// Secret enables body signing when non-empty.
	Secret  string
	Timeout time.Duration
	Retries int
	// Backoff is the first retry delay; adapter.DefaultBackoff when zero.
	Backoff time.Duration
	// Transport wraps outgoing requests, e.g. for tracing. Nil uses the default.
	Transport http.RoundTripper
}

// Adapter posts run notifications as JSON.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New validates cfg.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("webhook adapter: retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
	}, nil
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Permanent reports whether err should not be retried: any 4xx except
// 408 and 429.
func Permanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return se.Code >= 400 && se.Code < 500
}

// Sign returns the signature header value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Publish posts event, retrying network errors and retriable statuses.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("User-Agent", "runreport/"+types.Version)
	header.Set(HeaderEvent, event.EventType)
	header.Set(HeaderRunID, event.RunID)
	if a.cfg.Secret != "" {
		header.Set(HeaderSignature, Sign(a.cfg.Secret, body))
	}
	for k, v := range a.cfg.Headers {
		header.Set(k, v)
	}

	return adapter.Retry(ctx, "webhook", a.cfg.Retries, a.cfg.Backoff, func(ctx context.Context) error {
		return a.post(ctx, header, body)
	}, Permanent)
}

func (a *Adapter) post(ctx context.Context, header http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = header.Clone()

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)

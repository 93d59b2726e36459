// Package redis notifies run completion over Redis pub/sub.
//
// Each notification is also stored under a per-run status key so a
// consumer that was not subscribed at publish time can still look it up.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/runreport/adapter"
)

const (
	// DefaultChannel receives every run_completed notification.
	DefaultChannel = "runreport:run_completed"
	// DefaultKeyPrefix prefixes the per-run status key.
	DefaultKeyPrefix = "runreport:run:"
	// DefaultStatusTTL is how long a status key lives.
	DefaultStatusTTL = 24 * time.Hour
	// DefaultTimeout bounds one SET plus PUBLISH attempt.
	DefaultTimeout = 5 * time.Second
	// DefaultRetries is the retry count when none is configured.
	DefaultRetries = 3
)

// Config configures the Redis notifier.
type Config struct {
	// URL is redis://[:password@]host:port[/db]. Required.
	URL string
	// Channel defaults to DefaultChannel.
	Channel string
	// KeyPrefix defaults to DefaultKeyPrefix.
	KeyPrefix string
	// StatusTTL defaults to DefaultStatusTTL. Negative disables the status key.
	StatusTTL time.Duration
	Timeout   time.Duration
	Retries   int
	// Backoff is the first retry delay; adapter.DefaultBackoff when zero.
	Backoff time.Duration
}

// Adapter publishes run notifications with go-redis.
type Adapter struct {
	cfg    Config
	client *goredis.Client
}

// New validates cfg and connects lazily; no command is sent until Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("redis adapter: retries must be >= 0, got %d", cfg.Retries)
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.StatusTTL == 0 {
		cfg.StatusTTL = DefaultStatusTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Adapter{cfg: cfg, client: goredis.NewClient(opts)}, nil
}

// StatusKey returns the key holding the notification for runID.
func (a *Adapter) StatusKey(runID string) string {
	return a.cfg.KeyPrefix + runID
}

// Publish stores the notification under its status key, then publishes it.
// A closed client is not retried.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.cfg.Retries, a.cfg.Backoff, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()

		if a.cfg.StatusTTL > 0 {
			if err := a.client.Set(ctx, a.StatusKey(event.RunID), body, a.cfg.StatusTTL).Err(); err != nil {
				return err
			}
		}
		return a.client.Publish(ctx, a.cfg.Channel, body).Err()
	}, func(err error) bool {
		return errors.Is(err, goredis.ErrClosed)
	})
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)

// Package redis publishes merge completion events on a Redis pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/seam/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "seam:merge_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: seam:merge_completed).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
	// Backoff is the base delay between attempts (default 500ms).
	Backoff time.Duration
}

// Adapter publishes merge completion events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis pub/sub adapter from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = adapter.DefaultBackoff
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the event as JSON to the configured channel.
func (a *Adapter) Publish(ctx context.Context, event *adapter.MergeCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, a.config.Backoff, isClosed,
		func(ctx context.Context) error {
			publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
			defer cancel()
			return a.client.Publish(publishCtx, a.config.Channel, body).Err()
		})
}

func isClosed(err error) bool {
	return errors.Is(err, goredis.ErrClosed)
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)

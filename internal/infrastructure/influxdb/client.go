package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/venus-bridge/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second
)

// Client stores telemetry and transition history in an InfluxDB v2
// bucket. Points are batched by the library's non-blocking write API, so
// write methods never wait on the network. Safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	open    atomic.Bool
	onError atomic.Pointer[func(error)]
}

// writeOptions maps config onto client options, substituting fallbacks
// for unset batch size and flush interval.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := fallbackFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

// Connect pings the server and starts the batched write API.
//
// Parameters:
//   - ctx: Parent of the 10s ping deadline
//   - cfg: URL, token, org, bucket and batching settings
//
// Returns:
//   - *Client: Client ready for writes
//   - error: ErrDisabled when disabled, ErrConnectionFailed when the ping
//     fails or the server reports unhealthy
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	raw := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, raw); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{client: raw, writeAPI: raw.WriteAPI(cfg.Org, cfg.Bucket), cfg: cfg}
	c.open.Store(true)
	go c.forwardErrors()
	return c, nil
}

func ping(ctx context.Context, raw influxdb2.Client) error {
	ok, err := raw.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("server reports unhealthy")
	}
	return nil
}

// forwardErrors drains the write API's error channel until Close.
func (c *Client) forwardErrors() {
	for err := range c.writeAPI.Errors() {
		if cb := c.onError.Load(); cb != nil {
			(*cb)(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError registers the callback for failed batch writes.
func (c *Client) SetOnError(callback func(err error)) {
	c.onError.Store(&callback)
}

// IsConnected reports whether the client is open. A nil client is closed.
func (c *Client) IsConnected() bool {
	return c != nil && c.open.Load()
}

// HealthCheck pings the server with a 5s deadline.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(checkCtx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush writes buffered points and waits for them. No-op once closed.
func (c *Client) Flush() {
	if c.IsConnected() && c.writeAPI != nil {
		c.writeAPI.Flush()
	}
}

// Close flushes what is buffered and releases the client. Safe on nil and
// safe to call twice.
func (c *Client) Close() error {
	if c == nil || c.client == nil || !c.open.Swap(false) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

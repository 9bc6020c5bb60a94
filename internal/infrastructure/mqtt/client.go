package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/venus-bridge/internal/infrastructure/config"
)

// Client is the bridge's broker session. It keeps the device availability
// topic current, remembers subscriptions across reconnects, and queues
// connection events for the poll loop to drain.
//
// Methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	online atomic.Bool

	events chan ConnectionEvent

	logMu  sync.RWMutex
	logger Logger
}

// Logger receives handler failures. *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect dials the broker described by cfg and registers a retained
// offline will on topics.Status(). Paho keeps reconnecting in the
// background after the first session is up.
//
// Parameters:
//   - ctx: Abandons the first connect when cancelled
//   - cfg: Broker, auth and reconnect settings
//   - topics: Topic builder for the bridged device
//
// Returns:
//   - *Client: Connected client
//   - error: ErrConnectionFailed if the broker did not answer within 10s
//     or ctx ended first
func Connect(ctx context.Context, cfg config.MQTTConfig, topics Topics) (*Client, error) {
	c := newClient(cfg, topics)
	opts := buildClientOptions(cfg)
	configureLWT(opts, topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.pushEvent(ConnectionEvent{Kind: EventReconnecting, At: time.Now()})
	})
	c.client = pahomqtt.NewClient(opts)

	if err := awaitConnect(ctx, c.client.Connect(), defaultConnectTimeout); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, err)
	}

	// onConnect may not have run yet.
	c.online.Store(true)
	return c, nil
}

// awaitConnect waits for the connect token, the timeout, or ctx, whichever
// comes first.
func awaitConnect(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("no answer within %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newClient(cfg config.MQTTConfig, topics Topics) *Client {
	return &Client{
		cfg:           cfg,
		topics:        topics,
		subscriptions: make(map[string]subscription),
		events:        make(chan ConnectionEvent, eventQueueSize),
	}
}

func (c *Client) onConnect() {
	c.online.Store(true)
	c.resubscribe()
	c.announce(StatusOnline, "")
	c.pushEvent(ConnectionEvent{Kind: EventConnected, At: time.Now()})
}

func (c *Client) onConnectionLost(err error) {
	c.online.Store(false)
	c.pushEvent(ConnectionEvent{Kind: EventConnectionLost, Err: err, At: time.Now()})
}

// announce publishes a retained availability message.
func (c *Client) announce(status, reason string) pahomqtt.Token {
	body := buildStatusPayload(status, reason, c.cfg.Broker.ClientID, c.topics.DeviceID, time.Now())
	return c.client.Publish(c.topics.Status(), byte(c.cfg.QoS), true, body)
}

// Close marks the bridge offline with reason graceful_shutdown and
// disconnects. It is a no-op for a client that never connected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(StatusOffline, ReasonShutdown).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.online.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the session is currently up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.online.Load() && c.client.IsConnected()
}

// Topics returns the topic builder passed to Connect.
func (c *Client) Topics() Topics {
	return c.topics
}

// SetLogger sets where handler errors and panics are reported. Without
// one they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.logMu.Lock()
	c.logger = logger
	c.logMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.logMu.RLock()
	defer c.logMu.RUnlock()
	return c.logger
}

package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/venus-bridge/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// defaultDisconnectQuiesce is in milliseconds, as paho expects.
	defaultDisconnectQuiesce = 1000

	maxQoS = 2
)

// Availability on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	ReasonShutdown   = "graceful_shutdown"
	ReasonUnexpected = "unexpected_disconnect"
)

// brokerURL is tcp://host:port, or ssl:// with TLS on.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp://"
	if b.TLS {
		scheme = "ssl://"
	}
	return scheme + net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// buildClientOptions translates the mqtt config section for paho. Paho
// retries both the first connect and later reconnects, backing off from
// reconnect.initial_delay up to reconnect.max_delay.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if u := cfg.Auth.Username; u != "" {
		opts.SetUsername(u).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// configureLWT registers a retained QoS 1 offline message that the broker
// publishes if the bridge vanishes without Close.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	will := buildStatusPayload(StatusOffline, ReasonUnexpected, clientID, topics.DeviceID, time.Now())
	opts.SetBinaryWill(topics.Status(), will, 1, true)
}

// buildStatusPayload encodes an availability message. The reason is
// omitted when empty.
func buildStatusPayload(status, reason, clientID, deviceID string, at time.Time) []byte {
	msg := map[string]string{
		"status":    status,
		"client_id": clientID,
		"device_id": deviceID,
		"timestamp": at.UTC().Format(time.RFC3339),
	}
	if reason != "" {
		msg["reason"] = reason
	}
	b, _ := json.Marshal(msg)
	return b
}

package mqtt

import (
	"fmt"
	"sort"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps outgoing payloads. A telemetry snapshot is a few
// hundred bytes; anything near this is a bug upstream.
const maxPayloadSize = 1 << 20

// MessageHandler handles one inbound message. A returned error is logged
// as a warning; paho calls handlers on its own goroutines.
type MessageHandler func(topic string, payload []byte) error

// subscription is kept so handleConnect can restore it after a reconnect.
type subscription struct {
	qos     byte
	handler MessageHandler
}

func checkTopicQoS(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	}
	return nil
}

// await waits for token and wraps a timeout or broker error in sentinel.
func await(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: no broker ack within %v", sentinel, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

// Publish sends payload to topic and waits for the broker's ack (QoS 1/2)
// or the write (QoS 0).
//
// Parameters:
//   - topic: Full topic, e.g. "marstek/venus/aabbccddeeff/data"
//   - payload: Encoded message, at most 1 MiB
//   - qos: 0, 1 or 2
//   - retained: Ask the broker to keep the message for late subscribers
//
// Returns:
//   - error: ErrInvalidTopic/ErrInvalidQoS for bad arguments, ErrNotConnected
//     while offline, ErrPublishFailed for oversized payloads, timeouts and
//     broker errors
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopicQoS(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload over the %d byte limit", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// Subscribe routes messages on topic to handler. The subscription is
// remembered and restored whenever the connection comes back.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopicQoS(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()

	if err := await(c.client.Subscribe(topic, qos, c.route(handler)), ErrSubscribeFailed); err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return err
	}
	return nil
}

// Subscriptions returns the subscribed topics, sorted.
func (c *Client) Subscriptions() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	topics := make([]string, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// resubscribe replays every remembered subscription. Failures show up as
// a later connection loss, so tokens are not awaited.
func (c *Client) resubscribe() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for topic, sub := range c.subscriptions {
		c.client.Subscribe(topic, sub.qos, c.route(sub.handler))
	}
}

func (c *Client) route(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs handler, logging its error and recovering a panic so one
// bad message cannot kill paho's router goroutine.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	log := c.getLogger()
	defer func() {
		if r := recover(); r != nil && log != nil {
			log.Error("mqtt handler panicked", "topic", topic, "panic", r)
		}
	}()

	if err := handler(topic, payload); err != nil && log != nil {
		log.Warn("mqtt message rejected", "topic", topic, "bytes", len(payload), "error", err)
	}
}

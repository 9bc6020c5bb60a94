package mqtt

import "errors"

// Sentinel errors. Callers match them with errors.Is.
var (
	// ErrConnectionFailed means the broker was not reached at startup.
	ErrConnectionFailed = errors.New("mqtt: broker unreachable")

	// ErrNotConnected means the client is offline (before connect, after
	// Close, or while paho is reconnecting).
	ErrNotConnected = errors.New("mqtt: not connected")

	ErrPublishFailed   = errors.New("mqtt: publish failed")
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	ErrInvalidTopic = errors.New("mqtt: empty topic")
	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")
)

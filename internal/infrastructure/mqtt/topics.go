package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "marstek/venus"

// Topics builds the MQTT topics for one bridged device.
//
// Every topic lives under {prefix}/{device_id}/:
//
//	topics := mqtt.NewTopics("marstek/venus", "aabbccddeeff")
//	topics.Data() // "marstek/venus/aabbccddeeff/data"
type Topics struct {
	Prefix   string
	DeviceID string
}

// NewTopics returns a topic builder. Trailing slashes on prefix are dropped
// and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix, deviceID string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix, DeviceID: deviceID}
}

func (t Topics) device(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", t.Prefix, t.DeviceID, suffix)
}

// Data returns the telemetry snapshot topic.
//
// Example: marstek/venus/aabbccddeeff/data
func (t Topics) Data() string {
	return t.device("data")
}

// Status returns the retained bridge availability topic (also the LWT topic).
//
// Example: marstek/venus/aabbccddeeff/status
func (t Topics) Status() string {
	return t.device("status")
}

// Transition returns the topic mode transition reports are published on.
//
// Example: marstek/venus/aabbccddeeff/transition
func (t Topics) Transition() string {
	return t.device("transition")
}

// ModeCommand returns the topic the bridge accepts mode requests on.
//
// Example: marstek/venus/aabbccddeeff/set/mode
func (t Topics) ModeCommand() string {
	return t.device("set/mode")
}

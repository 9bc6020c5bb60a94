package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementTelemetry  = "venus_telemetry"
	MeasurementTransition = "venus_mode_transition"
)

// skippedTelemetryKeys are snapshot keys that are not stored as fields.
var skippedTelemetryKeys = map[string]bool{
	"timestamp": true,
	"id":        true,
}

// WriteTelemetry records a published snapshot. Numeric, boolean and string
// values become fields; nested values are dropped. The write is non-blocking.
//
// Parameters:
//   - deviceID: Device identifier, stored as the device_id tag
//   - snapshot: Telemetry key/value pairs as decoded from the device
//   - ts: Point timestamp (the snapshot's publish time)
//
// Example:
//
//	client.WriteTelemetry("aabbccddeeff", map[string]any{"soc": 87.0, "bat_temp": 24.5}, now)
func (c *Client) WriteTelemetry(deviceID string, snapshot map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if p := telemetryPoint(deviceID, snapshot, ts); p != nil {
		c.writeAPI.WritePoint(p)
	}
}

// TransitionRecord is the summary of a mode transition stored in InfluxDB.
type TransitionRecord struct {
	DeviceID     string
	TargetMode   string
	State        string
	ObservedMode string
	Acknowledged bool
	Attempts     int
	Duration     time.Duration
	FinishedAt   time.Time
}

// WriteTransition records the outcome of a mode transition.
func (c *Client) WriteTransition(rec TransitionRecord) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(transitionPoint(rec))
}

// telemetryPoint builds the telemetry point, or nil if no field survives.
func telemetryPoint(deviceID string, snapshot map[string]any, ts time.Time) *write.Point {
	fields := make(map[string]interface{}, len(snapshot))
	for k, v := range snapshot {
		if skippedTelemetryKeys[k] {
			continue
		}
		switch val := v.(type) {
		case float64, float32, int, int64, int32, uint, uint64, bool, string:
			fields[k] = val
		}
	}
	if len(fields) == 0 {
		return nil
	}

	return write.NewPoint(
		MeasurementTelemetry,
		map[string]string{"device_id": deviceID},
		fields,
		ts,
	)
}

func transitionPoint(rec TransitionRecord) *write.Point {
	fields := map[string]interface{}{
		"acknowledged": rec.Acknowledged,
		"attempts":     rec.Attempts,
		"duration_ms":  rec.Duration.Milliseconds(),
		"verified":     rec.State == "verified",
	}
	if rec.ObservedMode != "" {
		fields["observed_mode"] = rec.ObservedMode
	}

	return write.NewPoint(
		MeasurementTransition,
		map[string]string{
			"device_id":   rec.DeviceID,
			"target_mode": rec.TargetMode,
			"state":       rec.State,
		},
		fields,
		rec.FinishedAt,
	)
}

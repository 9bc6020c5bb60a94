// Package influxdb stores bridge telemetry and mode transition outcomes in
// InfluxDB v2.
//
// It is an optional sink alongside MQTT: every snapshot the poll loop
// publishes is also written to the venus_telemetry measurement, and every
// executed transition to venus_mode_transition. Writes are batched and
// non-blocking, so a slow or unreachable InfluxDB never delays a poll cycle.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("influx write", "error", err) })
//
//	client.WriteTelemetry(deviceID, snapshot, time.Now())
package influxdb

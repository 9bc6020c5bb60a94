// Package logging provides structured logging for the Venus bridge.
//
// It wraps log/slog so every component logs with the same handler,
// level and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("poller").Info("cycle published", "topic", topic)
//
// Never log MQTT passwords, InfluxDB tokens or JWT secrets.
package logging

// Package config loads the bridge's YAML configuration.
//
// Load layers defaults, the file, and VENUSBRIDGE_* environment variables,
// then validates the result. Secrets (MQTT password, InfluxDB token, JWT
// secret) are best supplied through the environment so the file can stay
// world-readable.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	interval := cfg.PollInterval()
//
// The returned Config is treated as read-only. Components are handed the
// section they need when they are built.
package config

// Package mqtt is the bridge's broker session, built on paho.mqtt.golang.
//
// One Client carries the telemetry publishes, the set/mode subscription
// and a retained availability message on {prefix}/{device_id}/status. A
// Last Will marks the bridge offline if the process dies without calling
// Close.
//
// Paho callbacks never call into the application. Connection changes are
// queued as ConnectionEvent values (oldest dropped when full) and the poll
// loop collects them with DrainEvents.
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.Device.ID)
//	client, err := mqtt.Connect(ctx, cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Publish(topics.Data(), payload, 1, true)
//
// Use TLS (cfg.Broker.TLS) for any broker not on localhost.
package mqtt

package main

import (
	"context"

	"github.com/nerrad567/venus-bridge/internal/audit"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/venus-bridge/internal/poller"
	"github.com/nerrad567/venus-bridge/internal/venus"
)

// modeSubmitter queues mode requests on the poll loop.
type modeSubmitter interface {
	Submit(req poller.ModeRequest) (poller.ModeRequest, error)
}

// auditedModeHandler handles the MQTT mode command topic like
// Poller.HandleModeCommand and records every request in trail.
func auditedModeHandler(loop modeSubmitter, trail audit.Repository, log *logging.Logger) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		details := map[string]any{"topic": topic}

		req, err := poller.ParseModeRequest(payload)
		if err == nil {
			req.Source = poller.SourceMQTT
			details["mode"] = req.Command.Mode()
			details["command"] = venus.Params(req.Command)
			details["restore"] = req.Restore
			req, err = loop.Submit(req)
		}

		entry := audit.ModeRequest(poller.SourceMQTT, "", req.ID, details, err)
		if auditErr := trail.Create(context.Background(), entry); auditErr != nil {
			log.Warn("recording audit entry failed", "action", entry.Action, "error", auditErr)
		}
		return err
	}
}
